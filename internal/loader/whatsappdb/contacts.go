package whatsappdb

import (
	"bufio"
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/google/uuid"

	"github.com/frozenspider/chat-history-manager-go/internal/store"
)

// vcardContact is one parsed entry from a phone's exported contacts.vcf.
type vcardContact struct {
	FullName string
	Phones   []string
}

// ImportContacts reads a vCard export and renames any user in dsUUID with a
// phone number that matches one of a contact's, after the dataset has already been
// loaded into st. It updates only existing users; it never creates one.
func ImportContacts(st *store.Store, dsUUID uuid.UUID, vcfPath string) (matched, total int, err error) {
	contacts, err := parseVCardFile(vcfPath)
	if err != nil {
		return 0, 0, fmt.Errorf("parse vcard: %w", err)
	}
	total = len(contacts)

	byPhone := make(map[string]string, total)
	for _, c := range contacts {
		if c.FullName == "" {
			continue
		}
		for _, phone := range c.Phones {
			if phone != "" {
				byPhone[phone] = c.FullName
			}
		}
	}

	users, err := st.Users(dsUUID)
	if err != nil {
		return 0, total, err
	}
	for _, u := range users {
		for _, phone := range u.PhoneNumbers {
			name, ok := byPhone[phone]
			if !ok {
				continue
			}
			first, last := splitName(name)
			u.FirstName, u.LastName = first, last
			if err := st.UpdateUser(u); err != nil {
				return matched, total, err
			}
			matched++
			break
		}
	}
	return matched, total, nil
}

func splitName(full string) (first, last string) {
	full = strings.TrimSpace(full)
	if full == "" {
		return "", ""
	}
	parts := strings.SplitN(full, " ", 2)
	if len(parts) == 1 {
		return parts[0], ""
	}
	return parts[0], parts[1]
}

// parseVCardFile reads a .vcf file (vCard 2.1/3.0) and returns its contacts.
func parseVCardFile(path string) ([]vcardContact, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var contacts []vcardContact
	var current *vcardContact

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "BEGIN:VCARD":
			current = &vcardContact{}
		case line == "END:VCARD":
			if current != nil && (current.FullName != "" || len(current.Phones) > 0) {
				contacts = append(contacts, *current)
			}
			current = nil
		case current == nil:
			continue
		case strings.HasPrefix(line, "FN:") || strings.HasPrefix(line, "FN;"):
			if name := extractVCardValue(line); name != "" {
				current.FullName = name
			}
		case strings.HasPrefix(line, "TEL"):
			if phone := normalizeVCardPhone(extractVCardValue(line)); phone != "" {
				current.Phones = append(current.Phones, phone)
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan vcard: %w", err)
	}
	return contacts, nil
}

func extractVCardValue(line string) string {
	idx := strings.Index(line, ":")
	if idx < 0 {
		return ""
	}
	return strings.TrimSpace(line[idx+1:])
}

var nonDigitRe = regexp.MustCompile(`[^\d]`)

// normalizeVCardPhone normalizes a phone number from a vCard to E.164,
// applying the same UK-local/00-international heuristics a phone's own
// contacts app export typically needs.
func normalizeVCardPhone(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	hasPlus := strings.HasPrefix(raw, "+")
	digits := nonDigitRe.ReplaceAllString(raw, "")
	if digits == "" {
		return ""
	}
	if hasPlus {
		return "+" + digits
	}
	if strings.HasPrefix(digits, "00") && len(digits) > 4 {
		return "+" + digits[2:]
	}
	if strings.HasPrefix(digits, "0") && len(digits) >= 10 {
		return "+44" + digits[1:]
	}
	if len(digits) >= 10 {
		return "+" + digits
	}
	return ""
}
