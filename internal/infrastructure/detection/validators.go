package detection

import "strings"

func digitsOf(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func allSameDigit(digits string) bool {
	for i := 1; i < len(digits); i++ {
		if digits[i] != digits[0] {
			return false
		}
	}
	return len(digits) > 0
}

// validCPF runs the standard two-check-digit mod-11 algorithm. Sequences of
// a single repeated digit pass the checksum but are not real CPFs.
func validCPF(value string) bool {
	digits := digitsOf(value)
	if len(digits) != 11 || allSameDigit(digits) {
		return false
	}
	return cpfCheckDigit(digits, 9) == int(digits[9]-'0') &&
		cpfCheckDigit(digits, 10) == int(digits[10]-'0')
}

func cpfCheckDigit(digits string, length int) int {
	sum := 0
	for i := 0; i < length; i++ {
		sum += int(digits[i]-'0') * (length + 1 - i)
	}
	rest := (sum * 10) % 11
	if rest == 10 {
		return 0
	}
	return rest
}

var (
	cnpjWeightsFirst  = []int{5, 4, 3, 2, 9, 8, 7, 6, 5, 4, 3, 2}
	cnpjWeightsSecond = []int{6, 5, 4, 3, 2, 9, 8, 7, 6, 5, 4, 3, 2}
)

func validCNPJ(value string) bool {
	digits := digitsOf(value)
	if len(digits) != 14 || allSameDigit(digits) {
		return false
	}
	return cnpjCheckDigit(digits, cnpjWeightsFirst) == int(digits[12]-'0') &&
		cnpjCheckDigit(digits, cnpjWeightsSecond) == int(digits[13]-'0')
}

func cnpjCheckDigit(digits string, weights []int) int {
	sum := 0
	for i, w := range weights {
		sum += int(digits[i]-'0') * w
	}
	rest := sum % 11
	if rest < 2 {
		return 0
	}
	return 11 - rest
}

// validRG: no national checksum exists, only digit-count bounds.
func validRG(value string) bool {
	n := len(digitsOf(value))
	return n >= 7 && n <= 9
}

func validCEP(value string) bool {
	digits := digitsOf(value)
	if len(digits) != 8 {
		return false
	}
	return digits != "00000000"
}

// validEmail: the structural pattern is the primary filter; this only
// re-checks the "@" with a dot after it.
func validEmail(value string) bool {
	at := strings.Index(value, "@")
	if at <= 0 {
		return false
	}
	return strings.Contains(value[at:], ".")
}

func validPhone(value string) bool {
	n := len(digitsOf(value))
	return n >= 10 && n <= 13
}

// validFullName requires at least two capitalized tokens; single tokens
// match too many common nouns.
func validFullName(value string) bool {
	tokens := strings.Fields(value)
	capitalized := 0
	for _, tok := range tokens {
		r := []rune(tok)[0]
		if r >= 'A' && r <= 'Z' || r >= 'À' && r <= 'Ü' {
			capitalized++
		}
	}
	return capitalized >= 2
}
