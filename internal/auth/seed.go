package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Seed ensures the feature catalog, the super role with a full matrix and an
// initial administrator account exist. It is idempotent and safe to run on
// every start.
func Seed(ctx context.Context, store Store, adminEmail, adminPassword string) error {
	roles := store.Roles(ctx)

	if err := roles.EnsureFeatures(ctx, BuiltinFeatures); err != nil {
		return fmt.Errorf("ensure features: %w", err)
	}

	super, err := roles.FindByName(ctx, SuperRoleName)
	if errors.Is(err, ErrNotFound) {
		super = &Role{Name: SuperRoleName, Description: "Unrestricted administrative access"}
		if err := roles.Create(ctx, super); errors.Is(err, ErrConflict) {
			// Concurrent seeder won the insert; use its row.
			if super, err = roles.FindByName(ctx, SuperRoleName); err != nil {
				return err
			}
		} else if err != nil {
			return fmt.Errorf("create super role: %w", err)
		}
	} else if err != nil {
		return err
	}

	full := RoleFeature{CanCreate: true, CanRead: true, CanUpdate: true, CanDelete: true, CanPrint: true}
	for _, f := range BuiltinFeatures {
		if err := roles.SetFeatureGrant(ctx, super.ID, f.Name, full); err != nil {
			return fmt.Errorf("grant %s to super role: %w", f.Name, err)
		}
	}

	adminEmail = strings.TrimSpace(strings.ToLower(adminEmail))
	if adminEmail == "" || adminPassword == "" {
		return nil
	}
	users := store.Users(ctx)
	if _, err := users.FindByEmail(ctx, adminEmail); err == nil {
		return nil
	} else if !errors.Is(err, ErrNotFound) {
		return err
	}
	hash, err := HashPassword(adminPassword)
	if err != nil {
		return err
	}
	admin := &User{
		Email:        adminEmail,
		FullName:     "Administrator",
		PasswordHash: hash,
		RoleID:       super.ID,
		IsActive:     true,
	}
	if err := users.Create(ctx, admin); err != nil && !errors.Is(err, ErrConflict) {
		return fmt.Errorf("create admin user: %w", err)
	}
	return nil
}
