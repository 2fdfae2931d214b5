package live

import (
	"github.com/rs/zerolog"

	"github.com/collabhq/portal/internal/docstore"
	"github.com/collabhq/portal/internal/models"
)

// Feed limits. Requests and comments are bounded by tenant usage;
// activity and notifications are append-only and need a cap.
const (
	activityFeedLimit     = 50
	notificationFeedLimit = 100
)

// RequestsByOrg subscribes to the organization's requests, newest first.
func RequestsByOrg(docs docstore.Store, sess Session, logger zerolog.Logger, orgID string, onData func([]*models.Request)) *Adapter[*models.Request] {
	return NewAdapter(docs, sess, logger, docstore.Query{
		Collection: docstore.RequestsCollection,
		Filters:    []docstore.Filter{{Field: "org_id", Value: orgID}},
		OrderBy:    "created_at",
		Descending: true,
	}, models.DecodeRequest, onData)
}

// ActivityByOrg subscribes to the organization's activity feed, newest
// first, capped at the feed limit.
func ActivityByOrg(docs docstore.Store, sess Session, logger zerolog.Logger, orgID string, onData func([]*models.Activity)) *Adapter[*models.Activity] {
	return NewAdapter(docs, sess, logger, docstore.Query{
		Collection: docstore.ActivityCollection,
		Filters:    []docstore.Filter{{Field: "org_id", Value: orgID}},
		OrderBy:    "created_at",
		Descending: true,
		Limit:      activityFeedLimit,
	}, models.DecodeActivity, onData)
}

// NotificationsByUser subscribes to the principal's notifications, newest
// first. Notifications are user-scoped, not tenant-scoped, so this feed
// survives an organization switch.
func NotificationsByUser(docs docstore.Store, sess Session, logger zerolog.Logger, principalID string, onData func([]*models.Notification)) *Adapter[*models.Notification] {
	return NewAdapter(docs, sess, logger, docstore.Query{
		Collection: docstore.NotificationsCollection,
		Filters:    []docstore.Filter{{Field: "principal_id", Value: principalID}},
		OrderBy:    "created_at",
		Descending: true,
		Limit:      notificationFeedLimit,
	}, models.DecodeNotification, onData)
}

// CommentsByRequest subscribes to a request's comment thread in
// conversation order.
func CommentsByRequest(docs docstore.Store, sess Session, logger zerolog.Logger, requestID string, onData func([]*models.Comment)) *Adapter[*models.Comment] {
	return NewAdapter(docs, sess, logger, docstore.Query{
		Collection: docstore.CommentsCollection(requestID),
		OrderBy:    "created_at",
	}, models.DecodeComment, onData)
}
