package utils

import (
	"regexp"
	"strings"
)

var e164 = regexp.MustCompile(`^\+[1-9][0-9]{7,14}$`)

var phoneNoise = strings.NewReplacer(" ", "", "-", "", "(", "", ")", "", "\t", "")

// NormalizePhone убирает пробелы, дефисы и скобки. Формат не проверяет.
func NormalizePhone(raw string) string {
	return phoneNoise.Replace(strings.TrimSpace(raw))
}

func ValidPhone(phone string) bool {
	return e164.MatchString(phone)
}

// MaskPhone оставляет последние 4 цифры: +91******3210.
func MaskPhone(phone string) string {
	if len(phone) <= 7 {
		return phone
	}
	return phone[:3] + strings.Repeat("*", len(phone)-7) + phone[len(phone)-4:]
}
