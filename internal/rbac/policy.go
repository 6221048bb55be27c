package rbac

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"slices"
	"sort"

	"gopkg.in/yaml.v3"
)

//go:embed policy.yaml
var defaultPolicy []byte

// ErrInvalidPolicy indicates a policy document violating the group hierarchy.
var ErrInvalidPolicy = errors.New("rbac: invalid policy")

type policyDocument struct {
	Catalog     []ResourceType       `yaml:"catalog"`
	OwnerScoped []ResourceType       `yaml:"owner_scoped"`
	Groups      map[Group][]Codename `yaml:"groups"`
	Roles       map[string]Group     `yaml:"roles"`
}

type codenameSet map[Codename]struct{}

func (s codenameSet) has(c Codename) bool {
	_, ok := s[c]
	return ok
}

func (s codenameSet) contains(other codenameSet) bool {
	for c := range other {
		if !s.has(c) {
			return false
		}
	}
	return true
}

// Policy is the static role to permission table loaded at process start.
type Policy struct {
	catalog     map[ResourceType]struct{}
	ownerScoped map[ResourceType]struct{}
	groups      map[Group]codenameSet
	roleGroups  map[Role]Group
}

// DefaultPolicy parses the embedded policy.
func DefaultPolicy() (*Policy, error) {
	return ParsePolicy(defaultPolicy)
}

// LoadPolicy reads a policy file, falling back to the embedded policy when path is empty.
func LoadPolicy(path string) (*Policy, error) {
	if path == "" {
		return DefaultPolicy()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("rbac: read policy: %w", err)
	}
	return ParsePolicy(data)
}

// ParsePolicy decodes and validates a YAML policy document.
func ParsePolicy(data []byte) (*Policy, error) {
	var doc policyDocument
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("rbac: decode policy: %w", err)
	}
	p := &Policy{
		catalog:     make(map[ResourceType]struct{}, len(doc.Catalog)),
		ownerScoped: make(map[ResourceType]struct{}, len(doc.OwnerScoped)),
		groups:      make(map[Group]codenameSet, len(doc.Groups)),
		roleGroups:  make(map[Role]Group, len(doc.Roles)),
	}
	for _, rt := range doc.Catalog {
		p.catalog[rt] = struct{}{}
	}
	for _, rt := range doc.OwnerScoped {
		if _, dup := p.catalog[rt]; dup {
			return nil, fmt.Errorf("%w: %s is both catalog and owner scoped", ErrInvalidPolicy, rt)
		}
		p.ownerScoped[rt] = struct{}{}
	}
	for g, codes := range doc.Groups {
		set := make(codenameSet, len(codes))
		for _, c := range codes {
			if !knownCodename(c) {
				return nil, fmt.Errorf("%w: unknown codename %q in %s", ErrInvalidPolicy, c, g)
			}
			set[c] = struct{}{}
		}
		p.groups[g] = set
	}
	for name, g := range doc.Roles {
		role, err := ParseRole(name)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidPolicy, err)
		}
		if _, ok := p.groups[g]; !ok {
			return nil, fmt.Errorf("%w: role %s maps to unknown group %s", ErrInvalidPolicy, name, g)
		}
		p.roleGroups[role] = g
	}
	if err := p.validate(); err != nil {
		return nil, err
	}
	return p, nil
}

func knownCodename(c Codename) bool {
	switch c {
	case CanView, CanCreate, CanEdit, CanDelete:
		return true
	}
	return false
}

// validate enforces Viewers = {can_view}, Editors within {can_view, can_create, can_edit},
// Admins containing Editors plus can_delete, and the same ordering across the role mapping.
func (p *Policy) validate() error {
	viewers, okV := p.groups[GroupViewers]
	editors, okE := p.groups[GroupEditors]
	admins, okA := p.groups[GroupAdmins]
	if !okV || !okE || !okA {
		return fmt.Errorf("%w: Viewers, Editors and Admins groups are required", ErrInvalidPolicy)
	}
	if len(viewers) != 1 || !viewers.has(CanView) {
		return fmt.Errorf("%w: Viewers must grant exactly can_view", ErrInvalidPolicy)
	}
	for c := range editors {
		if c == CanDelete {
			return fmt.Errorf("%w: Editors must not grant can_delete", ErrInvalidPolicy)
		}
	}
	if !editors.contains(viewers) {
		return fmt.Errorf("%w: Editors must contain Viewers", ErrInvalidPolicy)
	}
	if !admins.contains(editors) || !admins.has(CanDelete) {
		return fmt.Errorf("%w: Admins must contain Editors and can_delete", ErrInvalidPolicy)
	}
	chain := []Role{RoleAdmin, RoleLibrarian, RoleMember}
	for i := 0; i+1 < len(chain); i++ {
		upper := p.groups[p.roleGroups[chain[i]]]
		lower := p.groups[p.roleGroups[chain[i+1]]]
		if !upper.contains(lower) {
			return fmt.Errorf("%w: %s must hold every permission of %s", ErrInvalidPolicy, chain[i], chain[i+1])
		}
	}
	return nil
}

// GroupOf returns the group a role maps onto.
func (p *Policy) GroupOf(r Role) (Group, bool) {
	g, ok := p.roleGroups[r]
	return g, ok
}

// Grants reports whether the group holds codename on the catalog resource rt.
func (p *Policy) Grants(g Group, c Codename, rt ResourceType) bool {
	if !p.IsCatalog(rt) {
		return false
	}
	return p.groups[g].has(c)
}

// IsCatalog reports whether rt is governed by group permissions.
func (p *Policy) IsCatalog(rt ResourceType) bool {
	_, ok := p.catalog[rt]
	return ok
}

// IsOwnerScoped reports whether rt is governed by ownership.
func (p *Policy) IsOwnerScoped(rt ResourceType) bool {
	_, ok := p.ownerScoped[rt]
	return ok
}

// Permissions lists the permissions granted to a role, sorted.
func (p *Policy) Permissions(r Role) []Permission {
	g, ok := p.roleGroups[r]
	if !ok {
		return nil
	}
	resources := make([]ResourceType, 0, len(p.catalog))
	for rt := range p.catalog {
		resources = append(resources, rt)
	}
	slices.Sort(resources)
	codes := make([]Codename, 0, len(p.groups[g]))
	for c := range p.groups[g] {
		codes = append(codes, c)
	}
	sort.Slice(codes, func(i, j int) bool { return codeRank(codes[i]) < codeRank(codes[j]) })

	perms := make([]Permission, 0, len(resources)*len(codes))
	for _, rt := range resources {
		for _, c := range codes {
			perms = append(perms, Permission{Codename: c, Resource: rt})
		}
	}
	return perms
}

func codeRank(c Codename) int {
	switch c {
	case CanView:
		return 0
	case CanCreate:
		return 1
	case CanEdit:
		return 2
	case CanDelete:
		return 3
	}
	return 4
}
