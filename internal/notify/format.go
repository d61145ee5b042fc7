package notify

import (
	"strconv"
	"strings"
)

// FormatINR renders whole rupees with Indian digit grouping, e.g. ₹1,50,000
func FormatINR(amount int64) string {
	sign := ""
	if amount < 0 {
		sign = "-"
		amount = -amount
	}

	digits := strconv.FormatInt(amount, 10)
	if len(digits) <= 3 {
		return sign + "₹" + digits
	}

	head, tail := digits[:len(digits)-3], digits[len(digits)-3:]
	var groups []string
	for len(head) > 2 {
		groups = append([]string{head[len(head)-2:]}, groups...)
		head = head[:len(head)-2]
	}
	groups = append([]string{head}, groups...)

	return sign + "₹" + strings.Join(groups, ",") + "," + tail
}

// FormatPhone renders a 10-digit Indian mobile number as +91 98765 43210.
// Anything else is returned unchanged.
func FormatPhone(phone string) string {
	p := strings.TrimPrefix(strings.TrimSpace(phone), "+91")
	p = strings.TrimSpace(p)
	if len(p) != 10 {
		return phone
	}
	for _, r := range p {
		if r < '0' || r > '9' {
			return phone
		}
	}
	return "+91 " + p[:5] + " " + p[5:]
}
