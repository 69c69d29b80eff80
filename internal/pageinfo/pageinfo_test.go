package pageinfo

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const loginPage = `<!DOCTYPE html>
<html>
<head>
  <title>Sign in</title>
  <meta name="viewport" content="width=device-width, initial-scale=1">
</head>
<body>
  <h1>Welcome back</h1>
  <form id="login" method="post" action="/session">
    <label for="email">Email</label>
    <input type="email" name="email" id="email" placeholder="you@example.com" required>
    <input type="password" name="password" id="password" required>
    <select name="remember"><option>yes</option><option>no</option></select>
    <button type="submit">Log in</button>
  </form>
  <a href="/forgot">Forgot password?</a>
  <a href="#">noop</a>
  <img src="logo.png" alt="company logo">
</body>
</html>`

func TestExtractLoginPage(t *testing.T) {
	facts, err := Extract(loginPage)
	require.NoError(t, err)

	assert.Equal(t, "Sign in", facts.Title)
	assert.Equal(t, "Welcome back", facts.Heading)
	require.Len(t, facts.Inputs, 2)
	assert.Equal(t, "email", facts.Inputs[0].Type)
	assert.True(t, facts.Inputs[0].Required)
	require.Len(t, facts.Buttons, 1)
	assert.Equal(t, "submit", facts.Buttons[0].Type)
	require.Len(t, facts.Forms, 1)
	assert.Equal(t, "POST", facts.Forms[0].Method)
	assert.Equal(t, 4, facts.Forms[0].FieldCount)
	require.Len(t, facts.Selects, 1)
	assert.Equal(t, 2, facts.Selects[0].OptionCount)
	assert.Equal(t, 2, facts.RequiredCount)
	assert.True(t, facts.HasViewport)
	assert.True(t, facts.HasSubmitControl())
	assert.True(t, facts.HasRealLink())
	assert.True(t, facts.HasValidationMarkers())
	// label + img alt
	assert.GreaterOrEqual(t, facts.AriaCount, 2)
}

func TestExtractInputSubmitCountsAsButton(t *testing.T) {
	facts, err := Extract(`<form><input type="text" name="q"><input type="submit" value="Go"></form>`)
	require.NoError(t, err)

	require.Len(t, facts.Buttons, 1)
	assert.Equal(t, "Go", facts.Buttons[0].Text)
	require.Len(t, facts.Inputs, 1)
	assert.True(t, facts.HasSubmitControl())
}

func TestExtractBarePage(t *testing.T) {
	facts, err := Extract(`<html><body><p>nothing interactive</p></body></html>`)
	require.NoError(t, err)

	assert.Empty(t, facts.Buttons)
	assert.Empty(t, facts.Inputs)
	assert.Empty(t, facts.Forms)
	assert.False(t, facts.HasViewport)
	assert.False(t, facts.HasSubmitControl())
	assert.False(t, facts.HasRealLink())
	assert.False(t, facts.HasValidationMarkers())
}

func TestLinkWithOnlyHashIsNotReal(t *testing.T) {
	facts, err := Extract(`<a href="#">menu</a><a>anchorless</a>`)
	require.NoError(t, err)

	assert.Len(t, facts.Links, 2)
	assert.False(t, facts.HasRealLink())
}
