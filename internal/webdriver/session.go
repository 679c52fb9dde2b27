package webdriver

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/tidwall/gjson"
)

type Session struct {
	client *Client
	id     string
}

type Element struct {
	session *Session
	id      string
}

func (s *Session) ID() string { return s.id }

func (s *Session) path(suffix string) string {
	return "/session/" + url.PathEscape(s.id) + suffix
}

func (s *Session) Navigate(ctx context.Context, target string) error {
	_, err := s.client.do(ctx, http.MethodPost, s.path("/url"), map[string]any{"url": target})
	if err != nil {
		return fmt.Errorf("navigate to %s: %w", target, err)
	}
	return nil
}

func (s *Session) FindElement(ctx context.Context, using, value string) (*Element, error) {
	res, err := s.client.do(ctx, http.MethodPost, s.path("/element"), locator(using, value))
	if err != nil {
		return nil, fmt.Errorf("find %s %q: %w", using, value, err)
	}
	return s.element(res)
}

func (s *Session) FindElements(ctx context.Context, using, value string) ([]*Element, error) {
	res, err := s.client.do(ctx, http.MethodPost, s.path("/elements"), locator(using, value))
	if err != nil {
		return nil, fmt.Errorf("find all %s %q: %w", using, value, err)
	}
	return s.elements(res)
}

// ExecuteScript runs a synchronous script and returns its raw result.
func (s *Session) ExecuteScript(ctx context.Context, script string, args ...any) (gjson.Result, error) {
	if args == nil {
		args = []any{}
	}
	res, err := s.client.do(ctx, http.MethodPost, s.path("/execute/sync"), map[string]any{
		"script": script,
		"args":   args,
	})
	if err != nil {
		return gjson.Result{}, fmt.Errorf("execute script: %w", err)
	}
	return res, nil
}

// AsElement interprets a script result as a web element reference.
func (s *Session) AsElement(res gjson.Result) (*Element, error) {
	return s.element(res)
}

func (s *Session) Quit(ctx context.Context) error {
	if _, err := s.client.do(ctx, http.MethodDelete, s.path(""), nil); err != nil {
		return fmt.Errorf("quit session: %w", err)
	}
	return nil
}

func (s *Session) element(res gjson.Result) (*Element, error) {
	id := res.Get(elementKey).String()
	if id == "" {
		return nil, fmt.Errorf("result is not an element: %s", res.Raw)
	}
	return &Element{session: s, id: id}, nil
}

func (s *Session) elements(res gjson.Result) ([]*Element, error) {
	out := make([]*Element, 0, len(res.Array()))
	for _, r := range res.Array() {
		el, err := s.element(r)
		if err != nil {
			return nil, err
		}
		out = append(out, el)
	}
	return out, nil
}

func (e *Element) path(suffix string) string {
	return e.session.path("/element/" + url.PathEscape(e.id) + suffix)
}

func (e *Element) ID() string { return e.id }

func (e *Element) Click(ctx context.Context) error {
	if _, err := e.session.client.do(ctx, http.MethodPost, e.path("/click"), map[string]any{}); err != nil {
		return fmt.Errorf("click: %w", err)
	}
	return nil
}

func (e *Element) SendKeys(ctx context.Context, text string) error {
	if _, err := e.session.client.do(ctx, http.MethodPost, e.path("/value"), map[string]any{"text": text}); err != nil {
		return fmt.Errorf("send keys: %w", err)
	}
	return nil
}

func (e *Element) Text(ctx context.Context) (string, error) {
	res, err := e.session.client.do(ctx, http.MethodGet, e.path("/text"), nil)
	if err != nil {
		return "", fmt.Errorf("element text: %w", err)
	}
	return res.String(), nil
}

// FindElements searches below e.
func (e *Element) FindElements(ctx context.Context, using, value string) ([]*Element, error) {
	res, err := e.session.client.do(ctx, http.MethodPost, e.path("/elements"), locator(using, value))
	if err != nil {
		return nil, fmt.Errorf("find all %s %q below element: %w", using, value, err)
	}
	return e.session.elements(res)
}

func locator(using, value string) map[string]any {
	return map[string]any{"using": using, "value": value}
}
