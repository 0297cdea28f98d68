package rfmorse

/*------------------------------------------------------------------
 *
 * Purpose:   	Turn text into morse code keying bits.
 *
 * Description:	One bit per time unit, true for key down.
 *
 *		A dit is one unit on and a dah three, each followed by
 *		one unit off.  Every character is followed by two more
 *		units off, making the usual three between characters.
 *		A space adds four, making seven between words.
 *
 *---------------------------------------------------------------*/

import (
	"fmt"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"
)

type morse_s struct {
	ch  rune
	enc string
}

var MORSE []morse_s = []morse_s{
	{'A', ".-"},
	{'B', "-..."},
	{'C', "-.-."},
	{'D', "-.."},
	{'E', "."},
	{'F', "..-."},
	{'G', "--."},
	{'H', "...."},
	{'I', ".."},
	{'J', ".---"},
	{'K', "-.-"},
	{'L', ".-.."},
	{'M', "--"},
	{'N', "-."},
	{'O', "---"},
	{'P', ".--."},
	{'Q', "--.-"},
	{'R', ".-."},
	{'S', "..."},
	{'T', "-"},
	{'U', "..-"},
	{'V', "...-"},
	{'W', ".--"},
	{'X', "-..-"},
	{'Y', "-.--"},
	{'Z', "--.."},
	{'1', ".----"},
	{'2', "..---"},
	{'3', "...--"},
	{'4', "....-"},
	{'5', "....."},
	{'6', "-...."},
	{'7', "--..."},
	{'8', "---.."},
	{'9', "----."},
	{'0', "-----"},
	{'.', ".-.-.-"},
	{',', "--..--"},
	{'?', "..--.."},
	{'/', "-..-."},

	{'=', "-...-"}, /* from ARRL */
	{'-', "-....-"},
	{')', "-.--.-"}, /* does not distinguish open/close */
	{':', "---..."},
	{';', "-.-.-."},
	{'"', ".-..-."},
	{'\'', ".----."},
	{'$', "...-..-"},

	{'!', "-.-.--"}, /* more from wikipedia */
	{'(', "-.--."},
	{'&', ".-..."},
	{'+', ".-.-."},
	{'_', "..--.-"},
	{'@', ".--.-."},

	{' ', "    "},
}

const characterGap = "  "

/*-------------------------------------------------------------------
 *
 * Name:        morse_lookup
 *
 * Purpose:    	Given a character, find index in table above.
 *
 * Returns:	Index into table above or -1 if not found.
 *
 *--------------------------------------------------------------------*/

func morse_lookup(ch rune) int {

	if unicode.IsLower(ch) {
		ch = unicode.ToUpper(ch)
	}

	for i, m := range MORSE {
		if ch == m.ch {
			return i
		}
	}

	return -1
}

// morse_pattern is the table entry plus the gap after it.  Space has no gap
// of its own; the character before it already ended with three units off.
func morse_pattern(i int) string {
	if MORSE[i].ch == ' ' {
		return MORSE[i].enc
	}

	return MORSE[i].enc + characterGap
}

/*-------------------------------------------------------------------
 *
 * Name:        morse_units_ch
 *
 * Purpose:    	Find number of time units for a character,
 *		including the gap after it.
 *
 * Returns:	4 for E (.  ) and for space.
 *		-1 if the character is not in the table.
 *
 *--------------------------------------------------------------------*/

func morse_units_ch(ch rune) int {

	var i = morse_lookup(ch)

	if i < 0 {
		return -1
	}

	var units = 0

	for _, k := range morse_pattern(i) {
		switch k {
		case '.':
			units += 2
		case '-':
			units += 4
		default:
			units++
		}
	}

	return (units)
}

// EncodedLength is the number of keying bits Encode will produce for
// message, or an error naming the first character with no table entry.
func EncodedLength(message string) (int, error) {
	var units = 0

	for _, ch := range message {
		var u = morse_units_ch(ch)
		if u < 0 {
			return 0, fmt.Errorf("%w: %q", ErrUnknownCharacter, ch)
		}

		units += u
	}

	return units, nil
}

var longestPattern = func() int {
	var longest = 0
	for i := range MORSE {
		longest = max(longest, len(morse_pattern(i)))
	}

	return longest
}()

// EncodedCapacity is a buffer size big enough for any message of the same
// length: four bits per pattern symbol for the longest pattern in the table.
func EncodedCapacity(message string) int {
	return utf8.RuneCountInString(message)*longestPattern*4 + 1
}

/*-------------------------------------------------------------------
 *
 * Name:        Encode
 *
 * Purpose:    	Translate a message into keying bits.
 *
 * Inputs:	message		- Text; case is ignored.
 *
 *		capacity	- Maximum number of bits the caller will
 *				  accept.
 *
 * Returns:	ErrUnknownCharacter for a character not in the table.
 *
 *		ErrBufferTooSmall if a character might not fit.  The
 *		check is made before each character against the worst
 *		case of four bits per pattern symbol.
 *
 *--------------------------------------------------------------------*/

func Encode(message string, capacity int) ([]bool, error) {
	var bits = make([]bool, 0, max(0, min(capacity, EncodedCapacity(message))))

	for _, ch := range message {
		var i = morse_lookup(ch)
		if i < 0 {
			return nil, fmt.Errorf("%w: %q", ErrUnknownCharacter, ch)
		}

		var pattern = morse_pattern(i)

		if len(bits)+4*len(pattern) >= capacity {
			return nil, fmt.Errorf("%w: %d bits at %q, capacity %d", ErrBufferTooSmall, len(bits), ch, capacity)
		}

		for _, e := range pattern {
			switch e {
			case '.':
				bits = append(bits, true, false)
			case '-':
				bits = append(bits, true, true, true, false)
			default:
				bits = append(bits, false)
			}
		}
	}

	return bits, nil
}

// BitString renders keying bits as 1s and 0s.
func BitString(bits []bool) string {
	var sb strings.Builder

	sb.Grow(len(bits))

	for _, b := range bits {
		if b {
			sb.WriteByte('1')
		} else {
			sb.WriteByte('0')
		}
	}

	return sb.String()
}

// UnitsDuration is how long units time units take at wpm words per minute.
// A unit is 1200 / wpm milliseconds, the PARIS standard.
func UnitsDuration(units int, wpm int) time.Duration {
	return time.Duration(float64(units*1200)/float64(wpm)*1000) * time.Microsecond
}
