package errors

import (
	"bytes"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/certifi/gocertifi"
	"github.com/getsentry/sentry-go"
	"moff.io/wallet-verify/pkg/errors/reporter"
	"moff.io/wallet-verify/pkg/log"
)

var (
	reportersLock sync.RWMutex
	reporters     []Reporter
)

func init() {
	if os.Getenv(debugMode) == "" {
		log.Info("Env DEBUG not set, report errors enabled.")
	} else {
		log.Info("Env DEBUG set, report errors disabled.")
	}
}

func report(err error) {
	if err == nil {
		return
	}
	if os.Getenv(debugMode) != "" {
		return
	}
	reportersLock.RLock()
	defer reportersLock.RUnlock()
	for _, r := range reporters {
		r.Report(err)
	}
}

// Reporter receives every error created through the *AndReport helpers.
type Reporter interface {
	Report(error)
}

// RegisterReporter adds r to the reporters.
func RegisterReporter(r Reporter) {
	reportersLock.Lock()
	defer reportersLock.Unlock()
	reporters = append(reporters, r)
}

// ResetReporters drops every registered reporter.
func ResetReporters() {
	reportersLock.Lock()
	defer reportersLock.Unlock()
	reporters = nil
}

// Flush waits for buffered sentry events, call it before exiting.
func Flush(timeout time.Duration) {
	sentry.Flush(timeout)
}

type sentryReporter struct {
}

func (s *sentryReporter) Report(err error) {
	sentry.CaptureException(err)
}

// Reports are skipped while this variable is set.
const debugMode = "DEBUG"

// NewSentryReporter registers a sentry reporter for dsn. An empty dsn skips it.
func NewSentryReporter(sentryDSN, environment string) error {
	if sentryDSN == "" {
		log.Warn("empty DSN found, skipping sentry reporter initialization.")
		return nil
	}
	sentryClientOptions := sentry.ClientOptions{
		Dsn:         sentryDSN,
		Environment: environment,
	}

	rootCAs, err := gocertifi.CACerts()
	if err != nil {
		return Wrap(err, "init sentry CA")
	}

	sentryClientOptions.CaCerts = rootCAs
	err = sentry.Init(sentryClientOptions)
	if err != nil {
		return Wrap(err, "init sentry")
	}
	log.Info("sentry error reporter initialized.")
	RegisterReporter(&sentryReporter{})
	return nil
}

type dingTalkRobotReporter struct {
	limiter *rateLimiter
	reporter.DingTalkRobot
}

// NewDingTalkReporter registers a DingTalk robot reporter. Reports from the
// same call site are sent at most once per reportDelay.
func NewDingTalkReporter(webhook, secret string, reportDelay time.Duration) {
	if webhook == "" {
		log.Warn("empty dingtalk webhook found, skipping dingtalk reporter initialization.")
		return
	}
	robot := reporter.NewDingTalkRobot(webhook).WithSecret(secret)
	RegisterReporter(&dingTalkRobotReporter{limiter: newRateLimiter(reportDelay), DingTalkRobot: robot})
	log.Info("dingtalk error reporter initialized.")
}

const (
	errorField  = "error: "
	stacksField = "\nstacks:\n"
	breakline   = "\n"
	indent      = "	"
)

func (r *dingTalkRobotReporter) Report(err error) {
	if err == nil {
		return
	}
	stacks := callers().fullStack()
	limited, stats := r.limiter.StackBasedRateLimited(reportSite(stacks))
	if limited {
		return
	}
	var content bytes.Buffer
	content.WriteString("last report:")
	content.WriteString(formatReportTime(stats.lastReportTime))
	content.WriteString(breakline)
	content.WriteString("occur since last report:")
	content.WriteString(strconv.Itoa(stats.occurCountSinceLastReport))
	content.WriteString(breakline)
	content.WriteString(errorField)
	content.WriteString(err.Error())
	content.WriteString(stacksField)
	for _, s := range stacks {
		content.WriteString(indent)
		content.WriteString(s)
		content.WriteString(breakline)
	}
	if err := r.SendText(content.String(), nil, true); err != nil {
		log.Warn(WithStack(err))
	}
}
