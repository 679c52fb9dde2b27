// Package claim drives the browser through the login and daily-claim flow
// of the remote service for a single account.
package claim

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"auto-claimer/internal/model"
	"auto-claimer/internal/webdriver"

	"github.com/cenkalti/backoff/v4"
)

const (
	DefaultEndpoint     = "https://pixai.art"
	DefaultPollInterval = time.Second
	DefaultStepTimeout  = time.Minute
)

const removeModalsScript = `for (let item of Array.from(document.getElementsByClassName("MuiModal-root"))) { item.remove(); }`

const findClaimButtonScript = `
for (let item of document.getElementsByClassName("bg-black")) {
	if (item.innerText.startsWith("Claim")) {
		return item;
	}
}
return null;`

var errNotYet = errors.New("not present yet")

type Executor struct {
	Endpoint     string
	PollInterval time.Duration
	// StepTimeout bounds every wait for the page to reach the next state.
	StepTimeout time.Duration
	ChromeArgs  []string
	// DriverHost defaults to localhost.
	DriverHost string
	Logger     *slog.Logger
}

func NewExecutor(endpoint string, logger *slog.Logger) *Executor {
	if strings.TrimSpace(endpoint) == "" {
		endpoint = DefaultEndpoint
	}
	return &Executor{
		Endpoint:     strings.TrimRight(endpoint, "/"),
		PollInterval: DefaultPollInterval,
		StepTimeout:  DefaultStepTimeout,
		Logger:       logger,
	}
}

// PerformClaim reports whether the account ended up claimed. An account
// that had already claimed today counts as success.
func (e *Executor) PerformClaim(ctx context.Context, account model.Account, port uint16) bool {
	logger := e.logger().With("account", account.Email, "port", port)
	if err := e.claim(ctx, account, port); err != nil {
		logger.WarnContext(ctx, "claim failed", "error", err)
		return false
	}
	logger.InfoContext(ctx, "claim succeeded")
	return true
}

func (e *Executor) claim(ctx context.Context, account model.Account, port uint16) (err error) {
	client := webdriver.New(fmt.Sprintf("http://%s:%d", e.driverHost(), port), webdriver.Options{
		RetryMax: 2,
		Timeout:  30 * time.Second,
	})
	sess, err := client.NewSession(ctx, webdriver.ChromeCapabilities(e.ChromeArgs...))
	if err != nil {
		return err
	}
	defer func() {
		quitCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()
		if qerr := sess.Quit(quitCtx); qerr != nil {
			err = errors.Join(err, qerr)
		}
	}()

	if err := e.login(ctx, sess, account); err != nil {
		return fmt.Errorf("login: %w", err)
	}
	if err := e.openProfile(ctx, sess); err != nil {
		return fmt.Errorf("open profile: %w", err)
	}
	if err := e.clickClaim(ctx, sess); err != nil {
		return fmt.Errorf("claim: %w", err)
	}
	return nil
}

func (e *Executor) login(ctx context.Context, sess *webdriver.Session, account model.Account) error {
	if err := sess.Navigate(ctx, e.Endpoint+"/login"); err != nil {
		return err
	}
	useEmail, err := e.waitForText(ctx, sess, webdriver.ByTag, "button", "Log in with email")
	if err != nil {
		return err
	}
	if err := useEmail.Click(ctx); err != nil {
		return err
	}

	email, err := e.waitForElement(ctx, sess, "#email-input")
	if err != nil {
		return err
	}
	password, err := e.waitForElement(ctx, sess, "#password-input")
	if err != nil {
		return err
	}
	if err := email.SendKeys(ctx, account.Email); err != nil {
		return err
	}
	if err := password.SendKeys(ctx, account.Password); err != nil {
		return err
	}
	submit, err := sess.FindElement(ctx, webdriver.ByCSS, "button[type='submit']")
	if err != nil {
		return err
	}
	return submit.Click(ctx)
}

func (e *Executor) openProfile(ctx context.Context, sess *webdriver.Session) error {
	if err := e.waitForPresence(ctx, sess, webdriver.ByTag, "header"); err != nil {
		return err
	}
	if _, err := sess.ExecuteScript(ctx, removeModalsScript); err != nil {
		return err
	}

	header, err := sess.FindElement(ctx, webdriver.ByTag, "header")
	if err != nil {
		return err
	}
	divs, err := header.FindElements(ctx, webdriver.ByTag, "div")
	if err != nil {
		return err
	}
	if len(divs) == 0 {
		return errors.New("avatar menu not found in header")
	}
	if err := divs[len(divs)-1].Click(ctx); err != nil {
		return err
	}

	profile, err := e.waitForText(ctx, sess, webdriver.ByCSS, ".MuiListItemText-primary", "Profile")
	if err != nil {
		return err
	}
	return profile.Click(ctx)
}

func (e *Executor) clickClaim(ctx context.Context, sess *webdriver.Session) error {
	if err := e.waitForPresence(ctx, sess, webdriver.ByCSS, "span[class='contents']"); err != nil {
		return err
	}
	// the claim card renders after the profile shell
	if err := sleepCtx(ctx, e.pollInterval()); err != nil {
		return err
	}
	if _, err := sess.ExecuteScript(ctx, removeModalsScript); err != nil {
		return err
	}

	res, err := sess.ExecuteScript(ctx, findClaimButtonScript)
	if err != nil {
		return err
	}
	button, err := sess.AsElement(res)
	if err != nil {
		return fmt.Errorf("claim button not found: %w", err)
	}
	text, err := button.Text(ctx)
	if err != nil {
		return err
	}
	if strings.TrimSpace(text) == "Claimed" {
		e.logger().DebugContext(ctx, "already claimed today")
		return nil
	}
	if err := button.Click(ctx); err != nil {
		return err
	}
	return e.waitForPresence(ctx, sess, webdriver.ByCSS, ".Toastify")
}

func (e *Executor) waitForElement(ctx context.Context, sess *webdriver.Session, css string) (*webdriver.Element, error) {
	return e.waitFor(ctx, func() (*webdriver.Element, error) {
		els, err := sess.FindElements(ctx, webdriver.ByCSS, css)
		if err != nil {
			return nil, err
		}
		if len(els) == 0 {
			return nil, fmt.Errorf("%s: %w", css, errNotYet)
		}
		return els[0], nil
	})
}

func (e *Executor) waitForPresence(ctx context.Context, sess *webdriver.Session, using, value string) error {
	_, err := e.waitFor(ctx, func() (*webdriver.Element, error) {
		els, err := sess.FindElements(ctx, using, value)
		if err != nil {
			return nil, err
		}
		if len(els) == 0 {
			return nil, fmt.Errorf("%s: %w", value, errNotYet)
		}
		return els[0], nil
	})
	return err
}

// waitForText returns the first element matching the locator whose visible
// text equals text.
func (e *Executor) waitForText(ctx context.Context, sess *webdriver.Session, using, value, text string) (*webdriver.Element, error) {
	return e.waitFor(ctx, func() (*webdriver.Element, error) {
		els, err := sess.FindElements(ctx, using, value)
		if err != nil {
			return nil, err
		}
		for _, el := range els {
			got, err := el.Text(ctx)
			if err != nil {
				continue
			}
			if strings.TrimSpace(got) == text {
				return el, nil
			}
		}
		return nil, fmt.Errorf("%s with text %q: %w", value, text, errNotYet)
	})
}

func (e *Executor) waitFor(ctx context.Context, find func() (*webdriver.Element, error)) (*webdriver.Element, error) {
	stepCtx, cancel := context.WithTimeout(ctx, e.stepTimeout())
	defer cancel()

	var found *webdriver.Element
	operation := func() error {
		el, err := find()
		if err != nil {
			var wdErr *webdriver.Error
			if errors.As(err, &wdErr) && wdErr.Code != "no such element" && wdErr.Code != "stale element reference" {
				return backoff.Permanent(err)
			}
			return err
		}
		found = el
		return nil
	}
	b := backoff.WithContext(backoff.NewConstantBackOff(e.pollInterval()), stepCtx)
	if err := backoff.Retry(operation, b); err != nil {
		return nil, err
	}
	return found, nil
}

func (e *Executor) pollInterval() time.Duration {
	if e.PollInterval > 0 {
		return e.PollInterval
	}
	return DefaultPollInterval
}

func (e *Executor) stepTimeout() time.Duration {
	if e.StepTimeout > 0 {
		return e.StepTimeout
	}
	return DefaultStepTimeout
}

func (e *Executor) driverHost() string {
	if e.DriverHost != "" {
		return e.DriverHost
	}
	return "localhost"
}

func (e *Executor) logger() *slog.Logger {
	if e.Logger != nil {
		return e.Logger
	}
	return slog.Default()
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
