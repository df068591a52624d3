// Package identity maps between the CRM's addressing (E.164 phone numbers,
// entity references) and the transport's JIDs.
package identity

import (
	"context"
	"strings"
	"time"

	cache "github.com/patrickmn/go-cache"
	"github.com/rs/zerolog/log"

	"whatsapp-crm-sync/internal/models"
	"whatsapp-crm-sync/internal/transport"
)

// DefaultDomain is the transport domain for individual chats.
const DefaultDomain = "s.whatsapp.net"

const (
	groupSuffix  = "@g.us"
	opaqueSuffix = "@lid"
)

// NormalizePhone strips +, spaces and hyphens, leaving bare digits.
func NormalizePhone(phone string) string {
	r := strings.NewReplacer("+", "", " ", "", "-", "")
	return r.Replace(strings.TrimSpace(phone))
}

// DisplayPhone renders a phone in canonical display form, +digits.
func DisplayPhone(phone string) string {
	digits := NormalizePhone(phone)
	if digits == "" {
		return ""
	}
	return "+" + digits
}

// EntityReader is the slice of the document store the resolver needs.
type EntityReader interface {
	FindByPhone(ctx context.Context, phone string) (*models.EntityRef, error)
	DisplayName(ctx context.Context, ref models.EntityRef) (string, error)
	PhoneFor(ctx context.Context, ref models.EntityRef) (string, error)
}

// Resolver converts between phones, transport addresses and CRM entities.
// Chat JID lookups are read-through cached across requests; a renamed or
// re-keyed chat can be served from the previous mapping for up to the cache
// interval.
type Resolver struct {
	entities  EntityReader
	directory transport.Directory
	domain    string
	chatCache *cache.Cache
}

// NewResolver builds a resolver. directory may be nil when the active
// transport has no chat listing; JID resolution then falls back to the
// phone-derived address.
func NewResolver(entities EntityReader, directory transport.Directory, domain string) *Resolver {
	if domain == "" {
		domain = DefaultDomain
	}
	return &Resolver{
		entities:  entities,
		directory: directory,
		domain:    domain,
		// 30s is a process-wide window, not per request; a JID served from
		// here can lag a directory change by that much.
		chatCache: cache.New(30*time.Second, time.Minute),
	}
}

// PhoneToAddress converts a phone number to its canonical transport address.
// Insensitive to +, spaces and hyphens in the input.
func (r *Resolver) PhoneToAddress(phone string) string {
	return NormalizePhone(phone) + "@" + r.domain
}

// AddressToPhone maps a transport address back to a display-form phone.
// Group and opaque addresses carry no phone; ok is false for those and the
// caller must fall back to a display name or the identifier itself. A fake
// phone is never synthesized.
func (r *Resolver) AddressToPhone(addr string) (string, bool) {
	if addr == "" || strings.HasSuffix(addr, groupSuffix) || strings.HasSuffix(addr, opaqueSuffix) {
		return "", false
	}
	if !strings.HasSuffix(addr, "@"+r.domain) {
		return "", false
	}
	user := strings.SplitN(addr, "@", 2)[0]
	// Device suffixes look like 1234567890:12.
	user = strings.SplitN(user, ":", 2)[0]
	if user == "" {
		return "", false
	}
	return "+" + user, true
}

// ResolveEntity resolves a phone to the CRM entity that owns it. Failures
// degrade to unresolved rather than propagating.
func (r *Resolver) ResolveEntity(ctx context.Context, phone string) (*models.EntityRef, bool) {
	if NormalizePhone(phone) == "" {
		return nil, false
	}
	ref, err := r.entities.FindByPhone(ctx, phone)
	if err != nil {
		log.Warn().Err(err).Str("phone", phone).Msg("Entity resolution failed, treating as unresolved")
		return nil, false
	}
	if ref == nil {
		return nil, false
	}
	return ref, true
}

// DisplayName resolves the presentation name for a phone through the entity
// chain. Empty when unresolved; callers fall back to the raw counterpart.
func (r *Resolver) DisplayName(ctx context.Context, phone string) string {
	ref, ok := r.ResolveEntity(ctx, phone)
	if !ok {
		return ""
	}
	name, err := r.entities.DisplayName(ctx, *ref)
	if err != nil {
		log.Warn().Err(err).Str("phone", phone).Msg("Display name lookup failed")
		return ""
	}
	return name
}

// ChatJID finds the live chat JID for a phone by consulting the transport's
// directory listing, falling back to the phone-derived address when the
// directory is unavailable or has no match. The listing is fetched at most
// once per cache interval.
func (r *Resolver) ChatJID(ctx context.Context, phone string) string {
	digits := NormalizePhone(phone)
	fallback := digits + "@" + r.domain
	if r.directory == nil || digits == "" {
		return fallback
	}

	if jid, found := r.chatCache.Get(digits); found {
		return jid.(string)
	}

	chats, err := r.directory.Chats(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("Chat directory listing failed, using phone-derived JID")
		return fallback
	}
	for _, c := range chats {
		jidDigits := strings.SplitN(strings.SplitN(c.JID, "@", 2)[0], ":", 2)[0]
		if strings.Contains(c.JID, "@") && jidDigits == digits {
			r.chatCache.SetDefault(digits, c.JID)
			return c.JID
		}
	}
	r.chatCache.SetDefault(digits, fallback)
	return fallback
}

// IsGroup reports whether a JID addresses a group chat.
func IsGroup(jid string) bool { return strings.HasSuffix(jid, groupSuffix) }
