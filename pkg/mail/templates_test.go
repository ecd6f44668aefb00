// SPDX-FileCopyrightText: 2025 Deutsche Telekom AG
//
// SPDX-License-Identifier: Apache-2.0

package mail

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderConfirmation(t *testing.T) {
	t.Run("english by default", func(t *testing.T) {
		plain, html, err := RenderConfirmation(ConfirmationParams{
			DisplayName:  "Jane",
			RequestText:  "My login is broken",
			BrandingName: "Example",
		})
		require.NoError(t, err)

		assert.Contains(t, plain, "Hello Jane,")
		assert.Contains(t, plain, "thank you for reaching out")
		assert.Contains(t, plain, "My login is broken")
		assert.Contains(t, plain, "Best regards")
		assert.Contains(t, plain, "Example")

		assert.Contains(t, html, "Hello Jane,")
		assert.Contains(t, html, "<blockquote")
		assert.Contains(t, html, "My login is broken")
	})

	t.Run("german localization", func(t *testing.T) {
		plain, html, err := RenderConfirmation(ConfirmationParams{
			DisplayName: "Hans",
			RequestText: "Mein Login ist kaputt",
			Language:    "de",
		})
		require.NoError(t, err)

		assert.Contains(t, plain, "Hallo Hans,")
		assert.Contains(t, plain, "vielen Dank für Ihre Nachricht")
		assert.Contains(t, plain, "Viele Grüße")
		assert.Contains(t, html, "Diese Bestätigung wurde automatisch versendet")
	})

	t.Run("branding falls back to Support", func(t *testing.T) {
		plain, _, err := RenderConfirmation(ConfirmationParams{DisplayName: "Jane", RequestText: "x"})
		require.NoError(t, err)
		assert.Contains(t, plain, "Support")
	})

	t.Run("request text is HTML-escaped", func(t *testing.T) {
		_, html, err := RenderConfirmation(ConfirmationParams{
			DisplayName: "Jane",
			RequestText: `<script>alert("x")</script>`,
		})
		require.NoError(t, err)
		assert.NotContains(t, html, "<script>")
	})

	t.Run("very long requests are truncated in the quote", func(t *testing.T) {
		plain, _, err := RenderConfirmation(ConfirmationParams{
			DisplayName: "Jane",
			RequestText: strings.Repeat("a", 5000),
		})
		require.NoError(t, err)
		assert.NotContains(t, plain, strings.Repeat("a", 1001))
	})
}

func TestRenderResponse(t *testing.T) {
	plain, html, err := RenderResponse(ResponseParams{
		DisplayName:  "Jane",
		ResponseText: "We fixed your login.",
		BrandingName: "Example",
	})
	require.NoError(t, err)

	assert.Contains(t, plain, "Hello Jane,")
	assert.Contains(t, plain, "We fixed your login.")
	assert.Contains(t, html, "We fixed your login.")
}

func TestSubjects(t *testing.T) {
	assert.Equal(t, "Example: We received your request", ConfirmationSubject("en", "Example"))
	assert.Equal(t, "Example: Wir haben Ihre Anfrage erhalten", ConfirmationSubject("de", "Example"))
	assert.Equal(t, "Support: We received your request", ConfirmationSubject("", ""))
	assert.Equal(t, "Example: Response to your request", ResponseSubject("en", "Example"))
	assert.Equal(t, "Example: Antwort auf Ihre Anfrage", ResponseSubject("de", "Example"))
}
