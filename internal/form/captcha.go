// internal/form/captcha.go
//
// Question/answer CAPTCHA.
//
// Context
//   Challenges are pairs of message keys: the question is shown in the
//   visitor's language and the answer is compared in that same language.
//   Forms opt in by key (captcha.forms.<key>: true).  The rendered form
//   carries the challenge index in "captcha-id".
//
//------------------------------------------------------------------------------

package form

import (
	"math/rand"
	"strconv"
	"strings"
)

// Challenge holds the question and answer message keys.
type Challenge struct {
	Question string
	Answer   string
}

// Captcha is immutable after construction and safe for concurrent use.
type Captcha struct {
	forms      map[string]bool
	challenges []Challenge
}

// NewCaptcha copies forms and challenges.
func NewCaptcha(forms map[string]bool, challenges []Challenge) *Captcha {
	c := &Captcha{forms: make(map[string]bool, len(forms))}
	for k, v := range forms {
		c.forms[k] = v
	}
	c.challenges = append(c.challenges, challenges...)
	return c
}

// Enabled reports whether formKey requires a CAPTCHA.  A nil Captcha
// enables nothing.
func (c *Captcha) Enabled(formKey string) bool {
	return c != nil && len(c.challenges) > 0 && c.forms[formKey]
}

// Pick returns a random challenge index for rendering.
func (c *Captcha) Pick() int {
	return rand.Intn(len(c.challenges))
}

// Challenge returns the challenge at id.
func (c *Captcha) Challenge(id int) (Challenge, bool) {
	if c == nil || id < 0 || id >= len(c.challenges) {
		return Challenge{}, false
	}
	return c.challenges[id], true
}

// verdict of one CAPTCHA check.
type verdict int

const (
	captchaCorrect verdict = iota
	captchaMissing
	captchaUnknown
	captchaWrong
)

// check compares answer with the translated answer of challenge rawID.
func (c *Captcha) check(rawID, answer string, translate func(key string) string) verdict {
	answer = strings.TrimSpace(answer)
	if answer == "" {
		return captchaMissing
	}
	id, err := strconv.Atoi(strings.TrimSpace(rawID))
	if err != nil {
		return captchaUnknown
	}
	ch, ok := c.Challenge(id)
	if !ok {
		return captchaUnknown
	}
	if !strings.EqualFold(answer, strings.TrimSpace(translate(ch.Answer))) {
		return captchaWrong
	}
	return captchaCorrect
}
