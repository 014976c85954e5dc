package parse

import (
	"fmt"
	"io"
	"strings"

	"github.com/emersion/go-vcard"

	"github.com/hyperjump/meishi/internal/models"
)

// VCF parses vCard records from r. Cards without a name are skipped. A decode
// error after at least one successful card returns the cards parsed so far.
func VCF(r io.Reader) ([]*models.IncomingContact, error) {
	dec := vcard.NewDecoder(r)
	var contacts []*models.IncomingContact
	for {
		card, err := dec.Decode()
		if err == io.EOF {
			break
		}
		if err != nil {
			if len(contacts) > 0 {
				return contacts, nil
			}
			return nil, fmt.Errorf("decode vcard: %w", err)
		}

		c := &models.IncomingContact{}
		if fn := card.PreferredValue(vcard.FieldFormattedName); fn != "" {
			c.FullName = strings.TrimSpace(fn)
		} else if n := card.Name(); n != nil {
			c.FullName = strings.TrimSpace(n.GivenName + " " + n.FamilyName)
		}
		if c.FullName == "" {
			continue
		}

		c.Email = strings.TrimSpace(card.PreferredValue(vcard.FieldEmail))
		c.Phone = strings.TrimSpace(card.PreferredValue(vcard.FieldTelephone))
		c.Birthday = strings.TrimSpace(card.Value(vcard.FieldBirthday))
		c.Notes = strings.TrimSpace(card.Value(vcard.FieldNote))
		if adr := card.Address(); adr != nil {
			c.Address = formatAddress(adr)
		}
		if org := card.Value(vcard.FieldOrganization); org != "" {
			// ORG is semicolon-separated organizational units; the first is the company.
			c.Company = strings.TrimSpace(strings.SplitN(org, ";", 2)[0])
		}
		c.Position = strings.TrimSpace(card.Value(vcard.FieldTitle))

		contacts = append(contacts, c)
	}
	return contacts, nil
}

func formatAddress(adr *vcard.Address) string {
	parts := []string{adr.StreetAddress, adr.Locality, adr.Region, adr.PostalCode, adr.Country}
	var nonEmpty []string
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			nonEmpty = append(nonEmpty, p)
		}
	}
	return strings.Join(nonEmpty, ", ")
}
