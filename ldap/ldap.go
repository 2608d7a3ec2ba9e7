// Package ldap verifies credentials and reads roles from an LDAP
// directory such as Active Directory.
package ldap

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/go-ldap/ldap/v3"
	"github.com/goliatone/go-errors"

	auth "github.com/goliatone/go-session-auth"
)

// Attributes used to match a username to a directory entry.
const (
	AttrUserPrincipalName = "userPrincipalName"
	AttrSAMAccountName    = "sAMAccountName"
)

// TextCodeDirectoryError marks connection, bind and search failures.
const TextCodeDirectoryError = "DIRECTORY_ERROR"

// accountDisableFilter matches entries with the ACCOUNTDISABLE bit (2) of
// userAccountControl set, using the bitwise AND matching rule.
const accountDisableFilter = "(userAccountControl:1.2.840.113556.1.4.803:=2)"

// Config holds the directory location and the service account used for
// searches.
type Config struct {
	URL          string
	BindDN       string
	BindPassword string
	BaseDN       string
	// UserAttribute defaults to userPrincipalName.
	UserAttribute string
}

// Conn is the subset of *ldap.Conn used here.
type Conn interface {
	Bind(username, password string) error
	Search(req *ldap.SearchRequest) (*ldap.SearchResult, error)
	Close() error
}

// Dialer opens a connection to url.
type Dialer func(url string) (Conn, error)

type conn struct {
	*ldap.Conn
}

func (c conn) Close() error {
	c.Conn.Close()
	return nil
}

// DialURL is the default Dialer.
func DialURL(url string) (Conn, error) {
	c, err := ldap.DialURL(url)
	if err != nil {
		return nil, err
	}
	return conn{Conn: c}, nil
}

// Option configures a Directory
type Option func(*Directory)

// WithDialer replaces the dialer
func WithDialer(dialer Dialer) Option {
	return func(d *Directory) {
		if dialer != nil {
			d.dial = dialer
		}
	}
}

// WithLogger sets the logger
func WithLogger(logger auth.Logger) Option {
	return func(d *Directory) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// Directory talks to one LDAP server. Every call opens its own
// connection, so a Directory is safe for concurrent use.
type Directory struct {
	cfg    Config
	dial   Dialer
	logger auth.Logger
}

// New returns a Directory for cfg.
func New(cfg Config, opts ...Option) *Directory {
	if cfg.UserAttribute == "" {
		cfg.UserAttribute = AttrUserPrincipalName
	}
	d := &Directory{
		cfg:    cfg,
		dial:   DialURL,
		logger: auth.NopLogger(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(d)
		}
	}
	return d
}

// Verifier returns the directory as an auth.CredentialVerifier.
func (d *Directory) Verifier() *Verifier {
	return &Verifier{dir: d}
}

// GroupRoles returns the directory as an auth.RoleProvider.
func (d *Directory) GroupRoles() *GroupRoles {
	return &GroupRoles{dir: d}
}

// DisabledUsers lists the usernames of all disabled accounts, sorted.
func (d *Directory) DisabledUsers(ctx context.Context) ([]string, error) {
	entries, err := d.search(ctx, accountDisableFilter, []string{d.cfg.UserAttribute})
	if err != nil {
		return nil, err
	}
	users := make([]string, 0, len(entries))
	for _, e := range entries {
		if v := e.GetAttributeValue(d.cfg.UserAttribute); v != "" {
			users = append(users, v)
		}
	}
	sort.Strings(users)
	return users, nil
}

func (d *Directory) userFilter(username string) string {
	return fmt.Sprintf("(%s=%s)", d.cfg.UserAttribute, ldap.EscapeFilter(username))
}

func (d *Directory) disabledUserFilter(username string) string {
	return "(&" + accountDisableFilter + d.userFilter(username) + ")"
}

// search binds as the service account and runs a subtree search.
func (d *Directory) search(ctx context.Context, filter string, attributes []string) ([]*ldap.Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c, err := d.dial(d.cfg.URL)
	if err != nil {
		return nil, directoryError(err, "failed to connect to directory")
	}
	defer c.Close()

	if err := c.Bind(d.cfg.BindDN, d.cfg.BindPassword); err != nil {
		return nil, directoryError(err, "failed to bind service account")
	}

	req := ldap.NewSearchRequest(
		d.cfg.BaseDN,
		ldap.ScopeWholeSubtree, ldap.NeverDerefAliases, 0, 0, false,
		filter,
		attributes,
		nil,
	)

	res, err := c.Search(req)
	if err != nil {
		return nil, directoryError(err, "directory search failed")
	}
	return res.Entries, nil
}

// bindAs tries a simple bind with the user's own credentials.
func (d *Directory) bindAs(ctx context.Context, username, password string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	c, err := d.dial(d.cfg.URL)
	if err != nil {
		return false, directoryError(err, "failed to connect to directory")
	}
	defer c.Close()

	if err := c.Bind(username, password); err != nil {
		if ldap.IsErrorWithCode(err, ldap.LDAPResultInvalidCredentials) {
			return false, nil
		}
		return false, directoryError(err, "user bind failed")
	}
	return true, nil
}

// Verifier checks passwords by binding as the user.
type Verifier struct {
	dir *Directory
}

var _ auth.CredentialVerifier = (*Verifier)(nil)

// Verify binds as username. A rejected bind is reported as an unknown user
// when the service account cannot find the entry, else as a bad password.
// Directories reject binds for disabled accounts too, so a disabled
// verdict needs a successful bind followed by the account check.
func (v *Verifier) Verify(ctx context.Context, username, password string) (auth.Verdict, error) {
	// an empty password is an unauthenticated bind, which succeeds
	if password == "" {
		return auth.VerdictBadPassword, nil
	}

	ok, err := v.dir.bindAs(ctx, username, password)
	if err != nil {
		return auth.VerdictUnknownUser, err
	}

	if !ok {
		v.dir.logger.Debug("ldap bind rejected", "username", username)
		entries, err := v.dir.search(ctx, v.dir.userFilter(username), []string{v.dir.cfg.UserAttribute})
		if err != nil {
			return auth.VerdictUnknownUser, err
		}
		if len(entries) == 0 {
			return auth.VerdictUnknownUser, nil
		}
		return auth.VerdictBadPassword, nil
	}

	valid, err := v.IsValid(ctx, username)
	if err != nil {
		return auth.VerdictUnknownUser, err
	}
	if !valid {
		v.dir.logger.Info("ldap account disabled", "username", username)
		return auth.VerdictDisabled, nil
	}
	return auth.VerdictOK, nil
}

// IsValid reports whether username has no ACCOUNTDISABLE flag.
func (v *Verifier) IsValid(ctx context.Context, username string) (bool, error) {
	entries, err := v.dir.search(ctx, v.dir.disabledUserFilter(username), []string{v.dir.cfg.UserAttribute})
	if err != nil {
		return false, err
	}
	return len(entries) == 0, nil
}

// GroupRoles maps directory group membership to roles: each memberOf
// value contributes its CN.
type GroupRoles struct {
	dir *Directory
}

var _ auth.RoleProvider = (*GroupRoles)(nil)

// Roles returns the sorted group CNs of user. An unknown user has none.
func (g *GroupRoles) Roles(ctx context.Context, user string) ([]string, error) {
	entries, err := g.dir.search(ctx, g.dir.userFilter(user), []string{"memberOf"})
	if err != nil {
		return nil, err
	}

	seen := map[string]struct{}{}
	for _, e := range entries {
		for _, dn := range e.GetAttributeValues("memberOf") {
			if cn := CommonName(dn); cn != "" {
				seen[cn] = struct{}{}
			}
		}
	}

	roles := make([]string, 0, len(seen))
	for cn := range seen {
		roles = append(roles, cn)
	}
	sort.Strings(roles)
	return roles, nil
}

// CommonName returns the first CN value of dn, or "" when dn has none or
// does not parse.
func CommonName(dn string) string {
	parsed, err := ldap.ParseDN(dn)
	if err != nil {
		return ""
	}
	for _, rdn := range parsed.RDNs {
		for _, attr := range rdn.Attributes {
			if strings.EqualFold(attr.Type, "cn") {
				return attr.Value
			}
		}
	}
	return ""
}

func directoryError(err error, msg string) error {
	return errors.Wrap(err, errors.CategoryInternal, msg).
		WithTextCode(TextCodeDirectoryError).
		WithCode(errors.CodeInternal)
}
