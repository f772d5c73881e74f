package main

// sniffMethod pulls the top-level "method" string out of a frame without a
// full decode. It lets the validator drop methods outside the allow-list
// before paying for JSON parsing. ok is false when the object has no
// top-level method key or the value is not a plain string. A "method"
// string nested in result, error or params is never taken for the key.
func sniffMethod(data []byte) (method string, ok bool) {
	i := skipSpaces(data, 0)
	if i >= len(data) || data[i] != '{' {
		return "", false
	}
	depth := 0
	for i < len(data) {
		switch data[i] {
		case '{', '[':
			depth++
			i++
		case '}', ']':
			depth--
			if depth <= 0 {
				return "", false
			}
			i++
		case '"':
			end, escaped, closed := scanString(data, i+1)
			if !closed {
				return "", false
			}
			if depth == 1 && !escaped && string(data[i+1:end]) == "method" {
				// At the top level only keys are followed by a colon.
				next := skipSpaces(data, end+1)
				if next < len(data) && data[next] == ':' {
					return sniffStringValue(data, skipSpaces(data, next+1))
				}
			}
			i = end + 1
		default:
			i++
		}
	}
	return "", false
}

// scanString returns the index of the quote closing the string that starts
// at start, and whether it contained escapes.
func scanString(data []byte, start int) (end int, escaped bool, ok bool) {
	for end = start; end < len(data); end++ {
		switch data[end] {
		case '\\':
			escaped = true
			end++
		case '"':
			return end, escaped, true
		}
	}
	return 0, escaped, false
}

func sniffStringValue(data []byte, start int) (string, bool) {
	if start >= len(data) || data[start] != '"' {
		return "", false
	}
	end, escaped, ok := scanString(data, start+1)
	if !ok || escaped {
		// Escaped method names are left to the full decoder.
		return "", false
	}
	return string(data[start+1 : end]), true
}

func skipSpaces(data []byte, idx int) int {
	for idx < len(data) {
		switch data[idx] {
		case ' ', '\t', '\n', '\r':
			idx++
		default:
			return idx
		}
	}
	return idx
}
