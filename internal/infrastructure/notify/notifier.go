package notify

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	domain "github.com/mohammadpnp/book-import/internal/domain/importjob"
)

type Mailer interface {
	Send(ctx context.Context, to, subject, body string) error
}

// MailNotifier mails the completion summary to the library's recipient.
type MailNotifier struct {
	recipients RecipientResolver
	mailer     Mailer
	log        logrus.FieldLogger
}

func NewMailNotifier(recipients RecipientResolver, mailer Mailer, log logrus.FieldLogger) *MailNotifier {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &MailNotifier{recipients: recipients, mailer: mailer, log: log}
}

func (n *MailNotifier) NotifyCompleted(ctx context.Context, job domain.ImportJob) error {
	to, err := n.recipients.Resolve(ctx, job.LibraryID)
	if err != nil {
		return fmt.Errorf("resolve recipient: %w", err)
	}

	subject, body := Summary(job)
	if err := n.mailer.Send(ctx, to, subject, body); err != nil {
		return fmt.Errorf("send completion mail: %w", err)
	}

	n.log.WithFields(logrus.Fields{"job_id": job.ID, "to": to}).Info("import completion mail sent")
	return nil
}

// LogNotifier writes the summary to the log instead of mailing it.
type LogNotifier struct {
	log logrus.FieldLogger
}

func NewLogNotifier(log logrus.FieldLogger) *LogNotifier {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &LogNotifier{log: log}
}

func (n *LogNotifier) NotifyCompleted(_ context.Context, job domain.ImportJob) error {
	_, body := Summary(job)
	n.log.WithFields(logrus.Fields{
		"job_id":     job.ID,
		"library_id": job.LibraryID,
		"success":    job.SuccessCount,
		"failed":     job.FailedCount,
	}).Info(body)
	return nil
}
