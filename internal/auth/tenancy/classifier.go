// Package tenancy decides which organisation an email address belongs to.
package tenancy

import (
	"errors"
	"net/mail"
	"strings"

	"github.com/weppos/publicsuffix-go/publicsuffix"
)

var ErrInvalidEmail = errors.New("tenancy: invalid email address")

// publicDomains are consumer mailbox providers. An address on one of these
// says nothing about the organisation its owner works for.
var publicDomains = []string{
	"gmail.com", "googlemail.com",
	"outlook.com", "hotmail.com", "live.com", "msn.com", "hotmail.co.uk", "outlook.de",
	"yahoo.com", "ymail.com", "yahoo.co.uk", "yahoo.com.au", "rocketmail.com",
	"icloud.com", "me.com", "mac.com",
	"aol.com", "proton.me", "protonmail.com", "pm.me",
	"gmx.com", "gmx.de", "gmx.net", "web.de", "mail.com",
	"zoho.com", "yandex.com", "yandex.ru", "mail.ru",
	"qq.com", "163.com", "126.com",
	"fastmail.com", "hey.com", "tutanota.com", "tuta.io",
	"bigpond.com", "optusnet.com.au",
}

// Classification is the verdict for one email address.
type Classification struct {
	// Domain is the registrable domain, lower case: mail.contoso.co.uk
	// becomes contoso.co.uk.
	Domain string
	// Public is set for consumer mailbox providers.
	Public bool
}

// Classifier sorts email domains into public and organisational.
type Classifier struct {
	public map[string]struct{}
}

// NewClassifier builds a classifier over the built-in public domains plus
// any extras.
func NewClassifier(extra ...string) *Classifier {
	c := &Classifier{public: make(map[string]struct{}, len(publicDomains)+len(extra))}
	for _, d := range publicDomains {
		c.public[d] = struct{}{}
	}
	for _, d := range extra {
		if d = normalise(d); d != "" {
			c.public[d] = struct{}{}
		}
	}
	return c
}

// Classify reduces the address's domain to its registrable form and checks
// it against the public list. Both the full host and the registrable domain
// are checked, so a listed subdomain still counts.
func (c *Classifier) Classify(email string) (Classification, error) {
	host, err := DomainOf(email)
	if err != nil {
		return Classification{}, err
	}

	registrable, err := RegistrableDomain(host)
	if err != nil {
		return Classification{}, err
	}

	_, hostPublic := c.public[host]
	_, domainPublic := c.public[registrable]
	return Classification{Domain: registrable, Public: hostPublic || domainPublic}, nil
}

// DomainOf returns the lower-cased host part of an email address.
func DomainOf(email string) (string, error) {
	addr, err := mail.ParseAddress(strings.TrimSpace(email))
	if err != nil {
		return "", ErrInvalidEmail
	}

	at := strings.LastIndexByte(addr.Address, '@')
	if at < 1 || at == len(addr.Address)-1 {
		return "", ErrInvalidEmail
	}
	return normalise(addr.Address[at+1:]), nil
}

// RegistrableDomain reduces host to the part an organisation can register,
// ignoring private suffixes such as hosting platforms.
func RegistrableDomain(host string) (string, error) {
	d, err := publicsuffix.DomainFromListWithOptions(publicsuffix.DefaultList, normalise(host), &publicsuffix.FindOptions{
		IgnorePrivate: true,
		DefaultRule:   publicsuffix.DefaultRule,
	})
	if err != nil || d == "" {
		return "", ErrInvalidEmail
	}
	return d, nil
}

// TenantName derives a display name for a tenant created from domain:
// contoso.co.uk becomes "Contoso".
func TenantName(domain string) string {
	name := domain
	if parsed, err := publicsuffix.Parse(domain); err == nil && parsed.SLD != "" {
		name = parsed.SLD
	}
	if name == "" {
		return domain
	}
	return strings.ToUpper(name[:1]) + name[1:]
}

func normalise(d string) string {
	return strings.TrimSuffix(strings.ToLower(strings.TrimSpace(d)), ".")
}
