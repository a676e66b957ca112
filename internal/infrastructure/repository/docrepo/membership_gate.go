package docrepo

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kirillkom/brand-soul/internal/core/domain"
	"github.com/kirillkom/brand-soul/internal/core/ports"
)

type Role string

const (
	RoleOwner  Role = "owner"
	RoleEditor Role = "editor"
	RoleViewer Role = "viewer"
)

type Member struct {
	UserID    string    `json:"user_id"`
	BrandID   string    `json:"brand_id"`
	Role      Role      `json:"role"`
	CreatedAt time.Time `json:"created_at"`
}

// MembershipGate authorizes a user for a brand when a member record exists
// under brands/<brand>/members/<user>.
type MembershipGate struct {
	store ports.DocumentStore
}

var _ ports.AccessGate = (*MembershipGate)(nil)

func NewMembershipGate(store ports.DocumentStore) *MembershipGate {
	return &MembershipGate{store: store}
}

func (g *MembershipGate) RequireAccess(ctx context.Context, userID, brandID string) error {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return domain.WrapError(domain.ErrUnauthorized, "require access", errors.New("missing user id"))
	}
	if strings.TrimSpace(brandID) == "" {
		return domain.WrapError(domain.ErrInvalidInput, "require access", errors.New("missing brand id"))
	}
	_, err := g.store.Get(ctx, MembersCollection(brandID), userID)
	if errors.Is(err, domain.ErrNotFound) {
		return domain.WrapError(domain.ErrForbidden, "require access",
			fmt.Errorf("user %s is not a member of brand %s", userID, brandID))
	}
	if err != nil {
		return fmt.Errorf("load membership: %w", err)
	}
	return nil
}

func (g *MembershipGate) AddMember(ctx context.Context, brandID, userID string, role Role) error {
	if strings.TrimSpace(brandID) == "" || strings.TrimSpace(userID) == "" {
		return domain.WrapError(domain.ErrInvalidInput, "add member", errors.New("brand and user are required"))
	}
	if role == "" {
		role = RoleEditor
	}
	raw, err := encode(Member{UserID: userID, BrandID: brandID, Role: role, CreatedAt: time.Now().UTC()}, "member")
	if err != nil {
		return err
	}
	if err := g.store.Set(ctx, MembersCollection(brandID), userID, raw); err != nil {
		return fmt.Errorf("add member: %w", err)
	}
	return nil
}

func (g *MembershipGate) RemoveMember(ctx context.Context, brandID, userID string) (bool, error) {
	return g.store.Delete(ctx, MembersCollection(brandID), userID)
}
