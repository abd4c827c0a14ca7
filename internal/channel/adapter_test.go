package channel

import (
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/answerline/answer-engine/internal/domain"
)

func TestVerifySignature(t *testing.T) {
	body := []byte(`{"message":"hello"}`)
	secret := "shared-secret"

	sig := Sign(body, secret)
	assert.True(t, VerifySignature(body, sig, secret))
	assert.False(t, VerifySignature(body, sig, "other-secret"))
	assert.False(t, VerifySignature([]byte(`{"message":"tampered"}`), sig, secret))
	assert.False(t, VerifySignature(body, "", secret))

	// Empty secret disables validation.
	assert.True(t, VerifySignature(body, "", ""))
	assert.True(t, VerifySignature(body, "sha256=garbage", ""))
}

func TestNormalizeWhatsApp(t *testing.T) {
	tenant := uuid.New()
	body := fmt.Sprintf(`{
		"tenantId": %q,
		"entry": [{"changes": [{"value": {"messages": [
			{"from": "15551234567", "id": "wamid.1", "text": {"body": "What is the leave policy?"}}
		]}}]}
	]}`, tenant)

	in, err := Normalize("whatsapp", []byte(body))
	require.NoError(t, err)
	assert.Equal(t, tenant, in.TenantID)
	assert.Equal(t, "whatsapp", in.Channel)
	assert.Equal(t, "15551234567", in.PlatformUserID)
	assert.Equal(t, "What is the leave policy?", in.Message)
	assert.Equal(t, DeriveUserID("whatsapp", "15551234567"), in.UserID)
}

func TestNormalizeTelegram(t *testing.T) {
	tenant := uuid.New()
	body := fmt.Sprintf(`{
		"tenantId": %q,
		"message": {"from": {"id": 987654321}, "text": "next 2"}
	}`, tenant)

	in, err := Normalize("telegram", []byte(body))
	require.NoError(t, err)
	assert.Equal(t, "987654321", in.PlatformUserID)
	assert.Equal(t, "next 2", in.Message)
	assert.Equal(t, "telegram", in.Channel)
}

func TestNormalizeTeams(t *testing.T) {
	tenant := uuid.New()
	body := fmt.Sprintf(`{
		"tenantId": %q,
		"from": {"id": "29:1abcdef"}, "text": "how many chapters are there?"
	}`, tenant)

	in, err := Normalize("teams", []byte(body))
	require.NoError(t, err)
	assert.Equal(t, "29:1abcdef", in.PlatformUserID)
	assert.Equal(t, "how many chapters are there?", in.Message)
}

func TestNormalizeRejectsBadPayloads(t *testing.T) {
	tenant := uuid.New().String()

	cases := []struct {
		name    string
		channel string
		body    string
	}{
		{"unknown channel", "smoke-signal", `{}`},
		{"not json", "telegram", `not json`},
		{"missing sender", "teams", `{"tenantId":"` + tenant + `","text":"hi"}`},
		{"missing text", "teams", `{"tenantId":"` + tenant + `","from":{"id":"x"}}`},
		{"missing tenant", "teams", `{"from":{"id":"x"},"text":"hi"}`},
		{"bad tenant uuid", "teams", `{"tenantId":"nope","from":{"id":"x"},"text":"hi"}`},
		{"empty whatsapp entry", "whatsapp", `{"tenantId":"` + tenant + `","entry":[]}`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Normalize(tc.channel, []byte(tc.body))
			require.Error(t, err)
			assert.Equal(t, domain.KindValidation, domain.KindOf(err))
		})
	}
}

func TestDeriveUserIDStable(t *testing.T) {
	a := DeriveUserID("WhatsApp", "15551234567")
	b := DeriveUserID("whatsapp", "15551234567")
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, DeriveUserID("telegram", "15551234567"))
}
