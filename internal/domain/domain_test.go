package domain_test

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"virkum-respond/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDedupeCompanies(t *testing.T) {
	t.Run("Case and whitespace insensitive, first wins", func(t *testing.T) {
		in := []domain.Company{{ID: 1, Name: "Acme"}, {ID: 2, Name: "acme "}, {ID: 3, Name: "Beta"}}
		out := domain.DedupeCompanies(in)

		require.Len(t, out, 2)
		assert.Equal(t, "Acme", out[0].Name)
		assert.Equal(t, int64(1), out[0].ID)
		assert.Equal(t, "Beta", out[1].Name)
	})

	t.Run("Order of survivors is preserved", func(t *testing.T) {
		in := []domain.Company{{Name: "Gamma"}, {Name: " ALPHA"}, {Name: "gamma"}, {Name: "alpha"}, {Name: "Delta"}}
		out := domain.DedupeCompanies(in)

		names := make([]string, 0, len(out))
		for _, c := range out {
			names = append(names, c.Name)
		}
		assert.Equal(t, []string{"Gamma", " ALPHA", "Delta"}, names)
	})

	t.Run("Empty input", func(t *testing.T) {
		assert.Empty(t, domain.DedupeCompanies(nil))
	})
}

func TestValidationError(t *testing.T) {
	err := fmt.Errorf("start run: %w", domain.NewValidationError("num_emails", "must be >= 1"))

	assert.True(t, errors.Is(err, domain.ErrValidation))
	var vErr *domain.ValidationError
	require.True(t, errors.As(err, &vErr))
	assert.Equal(t, "num_emails", vErr.Field)
	assert.Contains(t, err.Error(), "must be >= 1")
}

func TestGenerationFailure(t *testing.T) {
	t.Run("Unwraps cause", func(t *testing.T) {
		cause := errors.New("401 unauthorized")
		f := domain.NewGenerationFailure(domain.ReasonCredentials, cause)

		assert.ErrorIs(t, f, cause)
		assert.Equal(t, "generation failed: credentials: 401 unauthorized", f.Error())
	})

	t.Run("Foreign errors become provider errors", func(t *testing.T) {
		f := domain.AsGenerationFailure(errors.New("boom"))
		assert.Equal(t, domain.ReasonProviderError, f.Reason)

		orig := domain.NewGenerationFailure(domain.ReasonTimeout, nil)
		assert.Same(t, orig, domain.AsGenerationFailure(fmt.Errorf("wrapped: %w", orig)))
	})

	t.Run("JSON keeps reason and message", func(t *testing.T) {
		f := domain.NewGenerationFailure(domain.ReasonMalformedPayload, errors.New("missing \"body\""))
		data, err := json.Marshal(f)
		require.NoError(t, err)
		assert.JSONEq(t, `{"reason":"malformed_payload","message":"missing \"body\""}`, string(data))

		var back domain.GenerationFailure
		require.NoError(t, json.Unmarshal(data, &back))
		assert.Equal(t, domain.ReasonMalformedPayload, back.Reason)
		assert.EqualError(t, back.Err, `missing "body"`)
	})
}

func TestRunSummaryWithTestID(t *testing.T) {
	s := domain.RunSummary{Companies: []string{"Acme"}, TotalRequests: 3}
	withID := s.WithTestID(42)

	assert.Equal(t, int64(0), s.TestID)
	assert.Equal(t, int64(42), withID.TestID)
	withID.Companies[0] = "Changed"
	assert.Equal(t, "Acme", s.Companies[0])
}

func TestScenarioTitle(t *testing.T) {
	assert.Equal(t, "Subject: Complaint about delivery", domain.ScenarioTitle(domain.DefaultScenarios[1]))
	assert.Equal(t, "single line", domain.ScenarioTitle("  single line "))
}
