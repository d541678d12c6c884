package browser

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/guhesse/script-wf-sub000/api/schemas"
	"github.com/guhesse/script-wf-sub000/internal/config"
	"github.com/guhesse/script-wf-sub000/internal/mocks"
	"github.com/guhesse/script-wf-sub000/internal/progress"
	"github.com/guhesse/script-wf-sub000/internal/session"
)

const (
	imsTestURL         = "https://auth.services.adobe.com/en_US/index.html"
	brokerTestURL      = "https://dell.okta.com/signin/verify/okta/push"
	destinationTestURL = "https://experience.adobe.com/#/@dell/so:dell-Production/workfront/home"

	settledHTML = `<html><body><div id="shell-header"><h1 data-testid="hero-title">Good morning</h1></div></body></html>`
)

// driverTestConfig shrinks every timing knob so a full attempt runs in
// milliseconds.
func driverTestConfig() *config.Config {
	return &config.Config{
		Browser: config.BrowserConfig{Headless: true, AllowOverride: true},
		Login: config.LoginConfig{
			EntryURL:             "https://experience.adobe.com/",
			TargetButtonSelector: `[data-testid="main-menu-toggle"]`,
			GracePeriodMs:        1,
			PollIntervalMs:       1,
			MaxPollDurationMs:    250,
			MaxPersistAttempts:   3,
			PushWaitPolls:        6,
			PushPollIntervalMs:   1,
			SettleMaxTicks:       8,
			SettleIntervalMs:     1,
			URLStableTicks:       2,
			NavigationTimeout:    time.Second,
		},
	}
}

func newTestDriver(t *testing.T, cfg *config.Config, page schemas.BrowserPage) (*Driver, *session.Store, *progress.Tracker) {
	t.Helper()

	logger := zap.NewNop()
	store := session.NewStore(t.TempDir(), 8*time.Hour, logger)
	tracker := progress.NewTracker(logger)

	driver := &Driver{
		logger:  logger,
		cfg:     cfg,
		store:   store,
		tracker: tracker,
		launch: func(ctx context.Context, headless bool) (schemas.BrowserPage, error) {
			return page, nil
		},
		fieldDelay: time.Millisecond,
	}
	return driver, store, tracker
}

func driverTestArtifact(cookies int) *schemas.SessionArtifact {
	artifact := &schemas.SessionArtifact{CapturedAt: time.Now()}
	for i := 0; i < cookies; i++ {
		artifact.Cookies = append(artifact.Cookies, schemas.Cookie{
			Name:   fmt.Sprintf("session-%d", i),
			Value:  "opaque",
			Domain: ".adobe.com",
		})
	}
	return artifact
}

func TestPerformLoginManualFlow(t *testing.T) {
	cfg := driverTestConfig()
	page := new(mocks.MockBrowserPage)
	driver, store, tracker := newTestDriver(t, cfg, page)

	page.On("Navigate", mock.Anything, cfg.Login.EntryURL).Return(nil).Once()
	page.On("HeadingTexts", mock.Anything).Return([]string{"Sign in to continue"}, nil)
	page.On("CurrentURL", mock.Anything).Return(destinationTestURL, nil)
	page.On("Exists", mock.Anything, cfg.Login.TargetButtonSelector).Return(false, nil).Times(2)
	page.On("Exists", mock.Anything, cfg.Login.TargetButtonSelector).Return(true, nil)
	page.On("Snapshot", mock.Anything).Return(driverTestArtifact(2), nil)
	page.On("Close").Return(nil).Once()

	attempt, err := driver.PerformLogin(context.Background(), nil)

	require.NoError(t, err)
	require.NotNil(t, attempt)
	assert.Equal(t, 1, attempt.PersistCount, "first persist should end the poll")
	assert.True(t, attempt.Verified)
	assert.Equal(t, destinationTestURL, attempt.FinalURL)
	assert.False(t, attempt.FinishedAt.IsZero())

	assert.True(t, store.Stats().PartialPresent, "snapshot should land in the partial artifact")

	snap := tracker.Get()
	assert.Equal(t, schemas.PhasePersisting, snap.Phase)
	assert.GreaterOrEqual(t, snap.Attempts, 3)

	page.AssertExpectations(t)
}

func TestPerformLoginMultiPersist(t *testing.T) {
	cfg := driverTestConfig()
	cfg.Login.MultiPersist = true
	cfg.Login.MaxPersistAttempts = 2

	page := new(mocks.MockBrowserPage)
	driver, store, _ := newTestDriver(t, cfg, page)

	page.On("Navigate", mock.Anything, cfg.Login.EntryURL).Return(nil).Once()
	page.On("HeadingTexts", mock.Anything).Return([]string{"Sign in to continue"}, nil)
	page.On("CurrentURL", mock.Anything).Return(destinationTestURL, nil)
	page.On("Exists", mock.Anything, cfg.Login.TargetButtonSelector).Return(true, nil)
	page.On("Snapshot", mock.Anything).Return(driverTestArtifact(1), nil)
	page.On("Close").Return(nil).Once()

	attempt, err := driver.PerformLogin(context.Background(), nil)

	require.NoError(t, err)
	assert.Equal(t, 2, attempt.PersistCount, "multi persist should capture up to the cap")
	assert.True(t, store.Stats().PartialPresent)
}

func TestPerformLoginPushFlow(t *testing.T) {
	cfg := driverTestConfig()
	page := new(mocks.MockBrowserPage)
	driver, store, tracker := newTestDriver(t, cfg, page)

	page.On("Navigate", mock.Anything, cfg.Login.EntryURL).Return(nil).Once()

	// Two polls with the push prompt on screen, then the prompt clears.
	page.On("HeadingTexts", mock.Anything).Return([]string{"Waiting for push notification"}, nil).Times(2)
	page.On("HeadingTexts", mock.Anything).Return([]string{}, nil)

	// The page sits on the broker during the wait, then lands on the portal.
	page.On("CurrentURL", mock.Anything).Return(brokerTestURL, nil).Times(2)
	page.On("CurrentURL", mock.Anything).Return(destinationTestURL, nil)

	page.On("Snapshot", mock.Anything).Return(driverTestArtifact(3), nil)
	page.On("OuterHTML", mock.Anything).Return(settledHTML, nil)
	page.On("Title", mock.Anything).Return("Adobe Workfront", nil)
	page.On("Close").Return(nil).Once()

	attempt, err := driver.PerformLogin(context.Background(), nil)

	require.NoError(t, err)
	assert.GreaterOrEqual(t, attempt.PersistCount, 1)
	assert.True(t, attempt.Verified, "settled page should pass content verification")
	assert.Equal(t, destinationTestURL, attempt.FinalURL)
	assert.True(t, store.Stats().PartialPresent)

	snap := tracker.Get()
	assert.Equal(t, schemas.PhaseDetectedButton, snap.Phase)

	page.AssertExpectations(t)
}

func TestPerformLoginLaunchFailure(t *testing.T) {
	cfg := driverTestConfig()
	driver, _, tracker := newTestDriver(t, cfg, nil)
	driver.launch = func(ctx context.Context, headless bool) (schemas.BrowserPage, error) {
		return nil, errors.New("no usable chrome binary")
	}

	attempt, err := driver.PerformLogin(context.Background(), nil)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "browser launch failed")
	require.NotNil(t, attempt)
	assert.False(t, attempt.FinishedAt.IsZero())

	snap := tracker.Get()
	assert.Equal(t, schemas.PhaseFailed, snap.Phase)
	assert.True(t, snap.Done)
	assert.Contains(t, snap.Error, "browser launch failed")
}

func TestPerformLoginBestEffortSnapshot(t *testing.T) {
	cfg := driverTestConfig()
	cfg.Login.MaxPollDurationMs = 30

	page := new(mocks.MockBrowserPage)
	driver, store, _ := newTestDriver(t, cfg, page)

	page.On("Navigate", mock.Anything, cfg.Login.EntryURL).Return(nil).Once()
	page.On("HeadingTexts", mock.Anything).Return([]string{"Sign In"}, nil)
	page.On("CurrentURL", mock.Anything).Return(brokerTestURL, nil)
	page.On("Exists", mock.Anything, cfg.Login.TargetButtonSelector).Return(false, nil)
	page.On("Snapshot", mock.Anything).Return(driverTestArtifact(1), nil)
	page.On("Close").Return(nil).Once()

	attempt, err := driver.PerformLogin(context.Background(), nil)

	require.NoError(t, err, "an undetected login still leaves a snapshot for promotion to judge")
	assert.Equal(t, 1, attempt.PersistCount)
	assert.False(t, attempt.Verified)
	assert.True(t, store.Stats().PartialPresent)
}

func TestPerformLoginExpiredWithoutSession(t *testing.T) {
	cfg := driverTestConfig()
	cfg.Login.MaxPollDurationMs = 30

	page := new(mocks.MockBrowserPage)
	driver, store, tracker := newTestDriver(t, cfg, page)

	page.On("Navigate", mock.Anything, cfg.Login.EntryURL).Return(nil).Once()
	page.On("HeadingTexts", mock.Anything).Return([]string{"Sign In"}, nil)
	page.On("CurrentURL", mock.Anything).Return(brokerTestURL, nil)
	page.On("Exists", mock.Anything, cfg.Login.TargetButtonSelector).Return(false, nil)
	page.On("Snapshot", mock.Anything).Return(nil, errors.New("target tab was closed"))
	page.On("Close").Return(nil).Once()

	attempt, err := driver.PerformLogin(context.Background(), nil)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "login window expired without a captured session")
	assert.Equal(t, 0, attempt.PersistCount)
	assert.False(t, store.Stats().PartialPresent)

	snap := tracker.Get()
	assert.Equal(t, schemas.PhaseFailed, snap.Phase)
	assert.True(t, snap.Done)
}

func TestAutofill(t *testing.T) {
	creds := &schemas.Credentials{
		Email:           "user@dell.com",
		PrimaryPassword: "primary-pass",
		BrokerPassword:  "broker-pass",
	}

	t.Run("should leave unknown providers to the operator", func(t *testing.T) {
		page := new(mocks.MockBrowserPage)
		driver, _, _ := newTestDriver(t, driverTestConfig(), page)

		page.On("CurrentURL", mock.Anything).Return("https://intranet.dell.com/start", nil).Once()

		// No fill expectations are registered: any field interaction on an
		// unknown provider would panic the mock and fail the test.
		require.NoError(t, driver.autofill(context.Background(), page, creds))
		assert.Len(t, page.Calls, 1)
	})

	t.Run("should follow the hop from the primary portal to the broker", func(t *testing.T) {
		page := new(mocks.MockBrowserPage)
		driver, _, _ := newTestDriver(t, driverTestConfig(), page)

		primary, _ := flowFor(ProviderPrimary)
		broker, _ := flowFor(ProviderBroker)

		page.On("CurrentURL", mock.Anything).Return(imsTestURL, nil).Once()
		page.On("CurrentURL", mock.Anything).Return(brokerTestURL, nil)

		// Primary portal: identifier, continue, password, submit.
		page.On("FirstMatch", mock.Anything, selectorsOf(primary.identifierChain)).Return("input#EmailPage-EmailField", nil)
		page.On("Fill", mock.Anything, "input#EmailPage-EmailField", creds.Email).Return(nil).Once()
		page.On("FirstMatch", mock.Anything, selectorsOf(primary.continueChain)).Return(`button[data-id="EmailPage-ContinueButton"]`, nil)
		page.On("Click", mock.Anything, `button[data-id="EmailPage-ContinueButton"]`).Return(nil).Once()
		page.On("FirstMatch", mock.Anything, selectorsOf(primary.passwordChain)).Return("input#PasswordPage-PasswordField", nil)
		page.On("Fill", mock.Anything, "input#PasswordPage-PasswordField", creds.PrimaryPassword).Return(nil).Once()
		page.On("FirstMatch", mock.Anything, selectorsOf(primary.submitChain)).Return(`button[data-id="PasswordPage-ContinueButton"]`, nil)
		page.On("Click", mock.Anything, `button[data-id="PasswordPage-ContinueButton"]`).Return(nil).Once()

		// Broker: the identifier is already federated, only the password
		// step has work to do.
		page.On("FirstMatch", mock.Anything, selectorsOf(broker.identifierChain)).Return("", nil)
		page.On("FirstMatch", mock.Anything, selectorsOf(broker.passwordChain)).Return("input#okta-signin-password", nil)
		page.On("Fill", mock.Anything, "input#okta-signin-password", creds.BrokerPassword).Return(nil).Once()
		page.On("FirstMatch", mock.Anything, selectorsOf(broker.submitChain)).Return("input#okta-signin-submit", nil)
		page.On("Click", mock.Anything, "input#okta-signin-submit").Return(nil).Once()

		require.NoError(t, driver.autofill(context.Background(), page, creds))
		page.AssertExpectations(t)
	})

	t.Run("should fall back to DOM fill when native typing fails", func(t *testing.T) {
		page := new(mocks.MockBrowserPage)
		driver, _, _ := newTestDriver(t, driverTestConfig(), page)

		primary, _ := flowFor(ProviderPrimary)
		emailOnly := &schemas.Credentials{Email: "user@dell.com"}

		page.On("CurrentURL", mock.Anything).Return(imsTestURL, nil)
		page.On("FirstMatch", mock.Anything, selectorsOf(primary.identifierChain)).Return("input#EmailPage-EmailField", nil)
		page.On("Fill", mock.Anything, "input#EmailPage-EmailField", emailOnly.Email).Return(errors.New("synthetic keystrokes rejected")).Once()
		page.On("FillViaDOM", mock.Anything, "input#EmailPage-EmailField", emailOnly.Email).Return(nil).Once()
		page.On("FirstMatch", mock.Anything, selectorsOf(primary.continueChain)).Return(`button[type="submit"]`, nil)
		page.On("Click", mock.Anything, `button[type="submit"]`).Return(nil).Once()

		require.NoError(t, driver.autofill(context.Background(), page, emailOnly))
		page.AssertExpectations(t)
	})
}

func TestWaitForDeviceConfirmation(t *testing.T) {
	t.Run("should conclude quickly when no prompt appears", func(t *testing.T) {
		page := new(mocks.MockBrowserPage)
		driver, _, _ := newTestDriver(t, driverTestConfig(), page)

		page.On("HeadingTexts", mock.Anything).Return([]string{"Sign In"}, nil)
		page.On("CurrentURL", mock.Anything).Return(brokerTestURL, nil)

		assert.False(t, driver.waitForDeviceConfirmation(context.Background(), page))
		page.AssertNumberOfCalls(t, "HeadingTexts", promptProbePolls)
	})

	t.Run("should confirm when the page leaves the broker", func(t *testing.T) {
		page := new(mocks.MockBrowserPage)
		driver, _, tracker := newTestDriver(t, driverTestConfig(), page)

		page.On("HeadingTexts", mock.Anything).Return([]string{"Okta Verify push sent"}, nil)
		page.On("CurrentURL", mock.Anything).Return(brokerTestURL, nil).Once()
		page.On("CurrentURL", mock.Anything).Return(destinationTestURL, nil)

		assert.True(t, driver.waitForDeviceConfirmation(context.Background(), page))
		assert.Equal(t, schemas.PhaseWaitingDeviceConfirmation, tracker.Get().Phase)
	})

	t.Run("should confirm when the prompt heading disappears", func(t *testing.T) {
		page := new(mocks.MockBrowserPage)
		driver, _, _ := newTestDriver(t, driverTestConfig(), page)

		page.On("HeadingTexts", mock.Anything).Return([]string{"Verifique seu dispositivo"}, nil).Once()
		page.On("HeadingTexts", mock.Anything).Return([]string{"Carregando"}, nil)
		page.On("CurrentURL", mock.Anything).Return(brokerTestURL, nil)

		assert.True(t, driver.waitForDeviceConfirmation(context.Background(), page))
	})

	t.Run("should treat heading errors as navigation and trust the URL", func(t *testing.T) {
		page := new(mocks.MockBrowserPage)
		driver, _, _ := newTestDriver(t, driverTestConfig(), page)

		page.On("HeadingTexts", mock.Anything).Return([]string{"Waiting for push notification"}, nil).Once()
		page.On("HeadingTexts", mock.Anything).Return(nil, errors.New("Execution context was destroyed"))
		page.On("CurrentURL", mock.Anything).Return(brokerTestURL, nil).Once()
		page.On("CurrentURL", mock.Anything).Return(destinationTestURL, nil)

		assert.True(t, driver.waitForDeviceConfirmation(context.Background(), page))
	})

	t.Run("should give up once the poll budget is spent", func(t *testing.T) {
		cfg := driverTestConfig()
		cfg.Login.PushWaitPolls = 3

		page := new(mocks.MockBrowserPage)
		driver, _, _ := newTestDriver(t, cfg, page)

		page.On("HeadingTexts", mock.Anything).Return([]string{"Waiting for push notification"}, nil)
		page.On("CurrentURL", mock.Anything).Return(brokerTestURL, nil)

		assert.False(t, driver.waitForDeviceConfirmation(context.Background(), page))
		page.AssertNumberOfCalls(t, "HeadingTexts", 3)
	})
}

func TestResolveCredentials(t *testing.T) {
	cfg := config.LoginConfig{
		Email:           "fallback@dell.com",
		PrimaryPassword: "cfg-primary",
		BrokerPassword:  "cfg-broker",
	}

	t.Run("should prefer caller credentials", func(t *testing.T) {
		opts := &schemas.LoginOptions{Credentials: &schemas.Credentials{Email: "caller@dell.com"}}
		creds := resolveCredentials(opts, cfg)
		require.NotNil(t, creds)
		assert.Equal(t, "caller@dell.com", creds.Email)
		assert.Empty(t, creds.BrokerPassword, "caller credentials are taken as-is, not merged")
	})

	t.Run("should fall back to configured credentials", func(t *testing.T) {
		creds := resolveCredentials(nil, cfg)
		require.NotNil(t, creds)
		assert.Equal(t, "fallback@dell.com", creds.Email)
		assert.Equal(t, "cfg-broker", creds.BrokerPassword)
	})

	t.Run("should report manual mode when nothing is configured", func(t *testing.T) {
		assert.Nil(t, resolveCredentials(nil, config.LoginConfig{}))
		assert.Nil(t, resolveCredentials(&schemas.LoginOptions{}, config.LoginConfig{}))
	})
}
