package classify

import "github.com/vietddude/recoverer/internal/core/domain"

// ExceptionTypeClassifier groups failures by the exception type of the
// latest attempt.
type ExceptionTypeClassifier struct{}

func (ExceptionTypeClassifier) Name() string { return "exception-type" }

func (ExceptionTypeClassifier) Classify(a *domain.ProcessingAttempt) (Classification, bool) {
	if a.Failure.ExceptionType == "" {
		return Classification{}, false
	}
	return Classification{
		Value: a.Failure.ExceptionType,
		Title: a.Failure.ExceptionType,
	}, true
}

// MessageTypeClassifier groups failures by the failing message's type.
type MessageTypeClassifier struct{}

func (MessageTypeClassifier) Name() string { return "message-type" }

func (MessageTypeClassifier) Classify(a *domain.ProcessingAttempt) (Classification, bool) {
	if a.MessageType == "" {
		return Classification{}, false
	}
	return Classification{Value: a.MessageType, Title: a.MessageType}, true
}

// EndpointClassifier groups failures by the endpoint the processing attempt
// failed at.
type EndpointClassifier struct{}

func (EndpointClassifier) Name() string { return "failed-endpoint" }

func (EndpointClassifier) Classify(a *domain.ProcessingAttempt) (Classification, bool) {
	if a.Endpoint == "" {
		return Classification{}, false
	}
	return Classification{Value: a.Endpoint, Title: a.Endpoint}, true
}
