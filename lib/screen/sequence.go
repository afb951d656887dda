// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package screen

// maxParameterBytes bounds how long a private mode sequence may be
// before it is treated as something else.
const maxParameterBytes = 32

// privateMode is a parsed DECSET or DECRST sequence.
type privateMode struct {
	// length is the byte length of the sequence, zero when the input
	// does not start with a private mode sequence.
	length int

	set            bool
	switchesScreen bool
	blink          *bool
}

// parsePrivateMode examines data, which starts with ESC. It returns
// ok=false when data ends partway through what could still become a
// private mode sequence.
func parsePrivateMode(data []byte) (privateMode, bool) {
	if len(data) < 2 {
		return privateMode{}, false
	}
	if data[1] != '[' {
		return privateMode{}, true
	}
	if len(data) < 3 {
		return privateMode{}, false
	}
	if data[2] != '?' {
		return privateMode{}, true
	}

	var parameters []int
	current, digits := 0, 0
	for index := 3; index < len(data); index++ {
		if index-3 > maxParameterBytes {
			return privateMode{}, true
		}
		switch b := data[index]; {
		case b >= '0' && b <= '9':
			current = current*10 + int(b-'0')
			digits++
		case b == ';':
			parameters = append(parameters, current)
			current, digits = 0, 0
		case b == 'h' || b == 'l':
			if digits > 0 {
				parameters = append(parameters, current)
			}
			mode := privateMode{length: index + 1, set: b == 'h'}
			for _, parameter := range parameters {
				switch parameter {
				case 47, 1047, 1049:
					mode.switchesScreen = true
				case 12:
					blink := mode.set
					mode.blink = &blink
				}
			}
			return mode, true
		default:
			return privateMode{}, true
		}
	}
	return privateMode{}, false
}
