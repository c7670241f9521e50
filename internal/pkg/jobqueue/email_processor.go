package jobqueue

import (
	"encoding/json"
	"fmt"

	"github.com/gofiber/fiber/v2/log"

	"github.com/justinrpoole/143-assessment-sub003/app/models"
	"github.com/justinrpoole/143-assessment-sub003/internal/pkg/env"
	"github.com/justinrpoole/143-assessment-sub003/internal/pkg/mail"
)

// processEmailJob delivers one claimed email job. Skip-class errors wrap
// errSkipJob; anything else counts against the retry budget.
func (q *Queue) processEmailJob(job *models.EmailJob) error {
	if !models.IsValidEmailJobType(job.Type) {
		return fmt.Errorf("%w: unknown type %q", errSkipJob, job.Type)
	}

	var user models.User
	if err := q.db.Where("id = ?", job.UserID).First(&user).Error; err != nil {
		return fmt.Errorf("load user %d: %w", job.UserID, err)
	}
	if user.Email == "" {
		return fmt.Errorf("%w: user %d has no email", errSkipJob, job.UserID)
	}

	payload := map[string]interface{}{}
	if job.PayloadJSON != "" {
		if err := json.Unmarshal([]byte(job.PayloadJSON), &payload); err != nil {
			return fmt.Errorf("%w: bad payload: %v", errSkipJob, err)
		}
	}

	subject, body, err := renderEmail(job.Type, payload)
	if err != nil {
		return fmt.Errorf("%w: %v", errSkipJob, err)
	}

	// Without an SMTP host the delivery goes to the log, which is what local
	// development wants.
	if env.GetEnv("SMTP_HOST", "") == "" {
		log.Infof("[JobQueue] SMTP not configured, logging email job %s to %s: %s", job.ID, user.Email, subject)
		return nil
	}
	return mail.SendMail(user.Email, subject, body)
}

// renderEmail builds subject and HTML body for an email job type. Links are
// rooted at the public domain so templates stay environment agnostic.
func renderEmail(jobType string, payload map[string]interface{}) (string, string, error) {
	domain := env.GetEnv("PUBLIC_DOMAIN", "http://localhost:4000")
	link := func(key, fallback string) string {
		if v, ok := payload[key].(string); ok && v != "" {
			return domain + v
		}
		return domain + fallback
	}

	switch jobType {
	case models.EmailJobTypeMagicLinkLogin:
		url, _ := payload["magic_link_url"].(string)
		if url == "" {
			return "", "", fmt.Errorf("magic link job without magic_link_url")
		}
		return "Your sign-in link",
			fmt.Sprintf(`<p>Click to sign in. The link is valid for 15 minutes.</p><p><a href="%s">Sign in</a></p>`, url),
			nil
	case models.EmailJobTypeChallengeKitDelivery:
		return "Your full report is ready",
			fmt.Sprintf(`<p>Thanks for your purchase. Your full report and challenge kit are unlocked.</p><p><a href="%s">Open your report</a></p>`, link("report_route", "/report")),
			nil
	case models.EmailJobTypePreviewNudge:
		return "Your results preview is waiting",
			fmt.Sprintf(`<p>Your preview is ready whenever you are.</p><p><a href="%s">See your preview</a></p>`, link("preview_route", "/preview")),
			nil
	case models.EmailJobTypeUpgradeNudge:
		return "Unlock your full report",
			fmt.Sprintf(`<p>The full report goes deeper on every dimension.</p><p><a href="%s">Unlock it</a></p>`, link("upgrade_route", "/upgrade")),
			nil
	case models.EmailJobTypePostReportFollowup:
		return "Getting the most from your report",
			fmt.Sprintf(`<p>A few ways to put your results to work this week.</p><p><a href="%s">Revisit your report</a></p>`, link("report_route", "/report")),
			nil
	case models.EmailJobTypeSubRenewal:
		return "Your OS updates subscription is active",
			fmt.Sprintf(`<p>You are all set. New updates land in your account as they ship.</p><p><a href="%s">Manage your account</a></p>`, link("account_route", "/account")),
			nil
	case models.EmailJobTypeSubReactivation:
		return "Come back anytime",
			fmt.Sprintf(`<p>Your subscription has ended. Your one-time purchases stay yours.</p><p><a href="%s">Reactivate</a></p>`, link("upgrade_route", "/upgrade")),
			nil
	case models.EmailJobTypeSubPastDue:
		return "Payment issue with your subscription",
			fmt.Sprintf(`<p>Your latest payment did not go through. Update your payment method to keep access.</p><p><a href="%s">Fix payment</a></p>`, link("account_route", "/account")),
			nil
	default:
		return "", "", fmt.Errorf("no template for job type %q", jobType)
	}
}
