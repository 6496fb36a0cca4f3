package email

import (
	"context"
	"fmt"
	"net/smtp"
	"time"

	"github.com/Dan9191/bank-cards/internal/config"
	"github.com/Dan9191/bank-cards/internal/models"
	"github.com/jordan-wright/email"
	"github.com/sirupsen/logrus"
)

// Sender handles sending emails via SMTP
type Sender struct {
	cfg    *config.Config
	logger *logrus.Logger
	send   func(e *email.Email) error
}

// NewSender creates a new email sender
func NewSender(cfg *config.Config, logger *logrus.Logger) *Sender {
	s := &Sender{
		cfg:    cfg,
		logger: logger,
	}
	s.send = s.sendSMTP
	return s
}

// NotifyBlockRequestProcessed tells the cardholder an admin approved or rejected their block request
func (s *Sender) NotifyBlockRequestProcessed(_ context.Context, user *models.User, req *models.BlockRequestView) error {
	e := email.NewEmail()
	e.From = s.cfg.SenderEmail
	e.To = []string{user.Email}
	e.Text = []byte(blockRequestBody(user, req))

	switch req.Status {
	case models.BlockRequestApproved:
		e.Subject = "Card Block Request Approved"
	case models.BlockRequestRejected:
		e.Subject = "Card Block Request Rejected"
	default:
		return fmt.Errorf("block request %d is not processed", req.ID)
	}

	if err := s.send(e); err != nil {
		s.logger.Errorf("Failed to send email to %s: %v", user.Email, err)
		return fmt.Errorf("failed to send email: %w", err)
	}

	s.logger.Infof("Email sent to %s: %s", user.Email, e.Subject)
	return nil
}

func blockRequestBody(user *models.User, req *models.BlockRequestView) string {
	body := fmt.Sprintf("Dear %s,\n\n", user.FullName())
	processedAt := time.Now()
	if req.ProcessedAt != nil {
		processedAt = *req.ProcessedAt
	}

	if req.Status == models.BlockRequestApproved {
		body += fmt.Sprintf(
			"Your request to block card %s has been approved.\n"+
				"The card was blocked at %s and can no longer be used for transfers.\n",
			req.MaskedCardNumber, processedAt.Format("2006-01-02 15:04:05"),
		)
	} else {
		body += fmt.Sprintf(
			"Your request to block card %s has been rejected.\n"+
				"Request details: %s\n",
			req.MaskedCardNumber, req.Reason,
		)
	}
	body += "\nBest regards,\nBank Service"
	return body
}

func (s *Sender) sendSMTP(e *email.Email) error {
	addr := fmt.Sprintf("%s:%s", s.cfg.SMTPHost, s.cfg.SMTPPort)
	auth := smtp.PlainAuth("", s.cfg.SMTPUsername, s.cfg.SMTPPassword, s.cfg.SMTPHost)
	return e.Send(addr, auth)
}
