package subscription

import (
	"fmt"
	"strings"

	fiberlog "github.com/gofiber/fiber/v2/log"

	"github.com/AndriyMelnyk/FinTrack/app/models"
	"github.com/AndriyMelnyk/FinTrack/internal/pkg/mail"
)

// Mailer sends a single email. The default implementation is the SMTP
// mailer; tests substitute their own.
type Mailer interface {
	SendMail(to, subject, body string) error
}

type smtpMailer struct{}

func (smtpMailer) SendMail(to, subject, body string) error {
	return mail.SendMail(to, subject, body)
}

// NotificationService sends lifecycle emails to subscribers. Every send is
// best effort: a failed email is logged and swallowed, it never changes the
// outcome of the billing operation that triggered it.
type NotificationService struct {
	mailer Mailer
}

// NewNotificationService creates a notification service using SMTP.
func NewNotificationService() *NotificationService {
	return &NotificationService{mailer: smtpMailer{}}
}

// NewNotificationServiceWithMailer creates a notification service with a
// custom mailer.
func NewNotificationServiceWithMailer(m Mailer) *NotificationService {
	return &NotificationService{mailer: m}
}

// SendSubscriptionActivated notifies the user their paid plan is active.
func (s *NotificationService) SendSubscriptionActivated(user *models.User, sub *models.UserSubscription) {
	planName := planDisplayName(sub)
	subject := "Your subscription is active"
	body := fmt.Sprintf(
		"<p>Hi %s,</p><p>your <strong>%s</strong> subscription is now active. Thank you for supporting FinTrack!</p>",
		user.Name, planName,
	)
	s.send(user, "subscription activated", subject, body)
}

// SendPaymentFailed notifies the user a charge did not go through.
func (s *NotificationService) SendPaymentFailed(user *models.User, sub *models.UserSubscription, reason string) {
	if strings.TrimSpace(reason) == "" {
		reason = "the payment could not be processed"
	}
	subject := "There was a problem with your payment"
	body := fmt.Sprintf(
		"<p>Hi %s,</p><p>we could not charge your payment method for the <strong>%s</strong> plan: %s.</p><p>Please check your payment details.</p>",
		user.Name, planDisplayName(sub), reason,
	)
	s.send(user, "payment failed", subject, body)
}

// SendCancellationConfirmation notifies the user their subscription was cancelled.
func (s *NotificationService) SendCancellationConfirmation(user *models.User, sub *models.UserSubscription) {
	subject := "Your subscription has been cancelled"
	var until string
	if sub != nil && sub.CancellationEffectiveAt != nil {
		until = fmt.Sprintf(" You keep access until %s.", sub.CancellationEffectiveAt.Format("January 2, 2006"))
	}
	body := fmt.Sprintf(
		"<p>Hi %s,</p><p>your <strong>%s</strong> subscription has been cancelled.%s</p><p>We are sorry to see you go.</p>",
		user.Name, planDisplayName(sub), until,
	)
	s.send(user, "cancellation confirmation", subject, body)
}

// SendTrialWelcome notifies the user their trial has started.
func (s *NotificationService) SendTrialWelcome(user *models.User, sub *models.UserSubscription) {
	subject := "Welcome to your FinTrack trial"
	var until string
	if sub != nil && sub.TrialEndsAt != nil {
		until = fmt.Sprintf(" Your trial runs until %s.", sub.TrialEndsAt.Format("January 2, 2006"))
	}
	body := fmt.Sprintf(
		"<p>Hi %s,</p><p>your free trial has started.%s</p>",
		user.Name, until,
	)
	s.send(user, "trial welcome", subject, body)
}

// SendTrialEndingSoon reminds the user their trial is about to end.
func (s *NotificationService) SendTrialEndingSoon(user *models.User, sub *models.UserSubscription) {
	subject := "Your trial is ending soon"
	var until string
	if sub != nil && sub.TrialEndsAt != nil {
		until = fmt.Sprintf(" on %s", sub.TrialEndsAt.Format("January 2, 2006"))
	}
	body := fmt.Sprintf(
		"<p>Hi %s,</p><p>your free trial ends%s. Pick a plan to keep access to all features.</p>",
		user.Name, until,
	)
	s.send(user, "trial ending reminder", subject, body)
}

// SendTrialExpired notifies the user their trial has ended.
func (s *NotificationService) SendTrialExpired(user *models.User, sub *models.UserSubscription) {
	subject := "Your trial has ended"
	body := fmt.Sprintf(
		"<p>Hi %s,</p><p>your free trial has ended. Subscribe to a plan to continue using all features.</p>",
		user.Name,
	)
	s.send(user, "trial expired", subject, body)
}

func (s *NotificationService) send(user *models.User, kind, subject, body string) {
	if user == nil || strings.TrimSpace(user.Email) == "" {
		fiberlog.Infof("[Notification] skipping %s email, no recipient address", kind)
		return
	}
	if err := s.mailer.SendMail(user.Email, subject, body); err != nil {
		fiberlog.Errorf("[Notification] failed to send %s email to %s: %v", kind, user.Email, err)
	}
}

// planDisplayName turns a plan code like STANDARD_MONTHLY_UA into a
// human-friendly name.
func planDisplayName(sub *models.UserSubscription) string {
	if sub == nil || sub.Plan == nil || sub.Plan.Code == "" {
		return "FinTrack"
	}
	words := strings.Split(strings.ToLower(sub.Plan.Code), "_")
	for i, w := range words {
		if w == "ua" {
			words[i] = "(UA)"
			continue
		}
		if len(w) > 0 {
			words[i] = strings.ToUpper(w[:1]) + w[1:]
		}
	}
	return strings.Join(words, " ")
}
