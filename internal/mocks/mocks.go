// File: internal/mocks/mocks.go
package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/guhesse/script-wf-sub000/api/schemas"
)

// -- Browser Page Mock --

// MockBrowserPage mocks the schemas.BrowserPage interface.
type MockBrowserPage struct {
	mock.Mock
}

func (m *MockBrowserPage) Navigate(ctx context.Context, url string) error {
	return m.Called(ctx, url).Error(0)
}

func (m *MockBrowserPage) CurrentURL(ctx context.Context) (string, error) {
	args := m.Called(ctx)
	return args.String(0), args.Error(1)
}

func (m *MockBrowserPage) Title(ctx context.Context) (string, error) {
	args := m.Called(ctx)
	return args.String(0), args.Error(1)
}

func (m *MockBrowserPage) WaitVisible(ctx context.Context, selector string) error {
	return m.Called(ctx, selector).Error(0)
}

func (m *MockBrowserPage) Exists(ctx context.Context, selector string) (bool, error) {
	args := m.Called(ctx, selector)
	return args.Bool(0), args.Error(1)
}

func (m *MockBrowserPage) FirstMatch(ctx context.Context, selectors ...string) (string, error) {
	args := m.Called(ctx, selectors)
	return args.String(0), args.Error(1)
}

func (m *MockBrowserPage) Fill(ctx context.Context, selector, value string) error {
	return m.Called(ctx, selector, value).Error(0)
}

func (m *MockBrowserPage) FillViaDOM(ctx context.Context, selector, value string) error {
	return m.Called(ctx, selector, value).Error(0)
}

func (m *MockBrowserPage) Click(ctx context.Context, selector string) error {
	return m.Called(ctx, selector).Error(0)
}

func (m *MockBrowserPage) HeadingTexts(ctx context.Context) ([]string, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

func (m *MockBrowserPage) OuterHTML(ctx context.Context) (string, error) {
	args := m.Called(ctx)
	return args.String(0), args.Error(1)
}

func (m *MockBrowserPage) Snapshot(ctx context.Context) (*schemas.SessionArtifact, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*schemas.SessionArtifact), args.Error(1)
}

func (m *MockBrowserPage) Screenshot(ctx context.Context) ([]byte, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]byte), args.Error(1)
}

func (m *MockBrowserPage) Close() error {
	return m.Called().Error(0)
}

// -- Login Driver Mock --

// MockLoginDriver mocks the schemas.LoginDriver interface.
type MockLoginDriver struct {
	mock.Mock
}

// PerformLogin provides a mock function for running one login attempt.
func (m *MockLoginDriver) PerformLogin(ctx context.Context, opts *schemas.LoginOptions) (*schemas.LoginAttempt, error) {
	args := m.Called(ctx, opts)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*schemas.LoginAttempt), args.Error(1)
}
