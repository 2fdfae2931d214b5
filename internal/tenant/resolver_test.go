package tenant

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/collabhq/portal/internal/fault"
	"github.com/collabhq/portal/internal/models"
)

func TestResolve(t *testing.T) {
	tests := []struct {
		name     string
		path     string
		override string
		expected string
	}{
		{
			name:     "concrete id in path",
			path:     "/org/org-42/dashboard",
			override: "",
			expected: "org-42",
		},
		{
			name:     "path id wins over conflicting override",
			path:     "/org/org-42/dashboard",
			override: "org-7",
			expected: "org-42",
		},
		{
			name:     "bracket placeholder falls through to override",
			path:     "/org/[orgId]/dashboard",
			override: "org-7",
			expected: "org-7",
		},
		{
			name:     "escaped placeholder falls through to override",
			path:     "/org/%5BorgId%5D/requests",
			override: "org-7",
			expected: "org-7",
		},
		{
			name:     "colon placeholder falls through to override",
			path:     "/org/:orgId/team",
			override: "org-9",
			expected: "org-9",
		},
		{
			name:     "no anchor segment, no override",
			path:     "/pricing",
			override: "",
			expected: "",
		},
		{
			name:     "no anchor segment, override set",
			path:     "/pricing",
			override: "org-3",
			expected: "org-3",
		},
		{
			name:     "anchor is last segment",
			path:     "/org",
			override: "",
			expected: "",
		},
		{
			name:     "trailing slash after anchor",
			path:     "/org/",
			override: "org-5",
			expected: "org-5",
		},
		{
			name:     "empty path pending",
			path:     "",
			override: "",
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.expected, Resolve(tt.path, tt.override))
		})
	}
}

type fakeNav struct {
	path     string
	replaced []string
}

func (n *fakeNav) Path() string { return n.path }
func (n *fakeNav) Replace(path string) {
	n.path = path
	n.replaced = append(n.replaced, path)
}

func TestSwitcher_Switch(t *testing.T) {
	t.Run("member switch succeeds", func(t *testing.T) {
		nav := &fakeNav{path: "/org/org-1/dashboard"}
		sw := NewSwitcher(nav, zerolog.Nop())
		p := &models.Principal{PrincipalID: "u1", OrgIDs: []string{"org-1", "org-2"}}

		err := sw.Switch(context.Background(), "org-2", p)
		require.NoError(t, err)
		require.Equal(t, "org-2", sw.Override())
		require.Equal(t, "org-2", sw.Active())
		require.Equal(t, []string{"/org/org-2/dashboard"}, nav.replaced)
	})

	t.Run("agency may switch to unlisted organization", func(t *testing.T) {
		nav := &fakeNav{path: "/org/[orgId]/dashboard"}
		sw := NewSwitcher(nav, zerolog.Nop())
		p := &models.Principal{PrincipalID: "u1", AccountKind: models.AccountKindAgency}

		err := sw.Switch(context.Background(), "org-7", p)
		require.NoError(t, err)
		require.Equal(t, "org-7", sw.Active())
	})

	t.Run("non-member switch is rejected and active is unchanged", func(t *testing.T) {
		nav := &fakeNav{path: "/org/[orgId]/dashboard"}
		sw := NewSwitcher(nav, zerolog.Nop())
		p := &models.Principal{PrincipalID: "u1", OrgIDs: []string{"org-1"}}

		require.NoError(t, sw.Switch(context.Background(), "org-1", p))
		require.Equal(t, "org-1", sw.Active())

		err := sw.Switch(context.Background(), "org-9", p)
		require.Error(t, err)
		require.True(t, fault.IsPermissionDenied(err))
		require.ErrorIs(t, err, fault.ErrAccessDenied)
		require.Equal(t, "org-1", sw.Active())
	})

	t.Run("empty target is a validation error", func(t *testing.T) {
		sw := NewSwitcher(&fakeNav{}, zerolog.Nop())
		err := sw.Switch(context.Background(), "", &models.Principal{})
		require.True(t, fault.IsValidation(err))
	})

	t.Run("clear drops the override", func(t *testing.T) {
		nav := &fakeNav{path: "/pricing"}
		sw := NewSwitcher(nav, zerolog.Nop())
		p := &models.Principal{OrgIDs: []string{"org-1"}}

		require.NoError(t, sw.Switch(context.Background(), "org-1", p))
		nav.path = "/pricing"
		require.Equal(t, "org-1", sw.Active())

		sw.Clear()
		require.Equal(t, "", sw.Active())
	})
}
