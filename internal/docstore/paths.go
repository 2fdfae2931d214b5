package docstore

import "fmt"

// Path builders for the portal's document layout. Membership paths are
// deterministic composites of {orgID, principalID}, which is what makes
// concurrent create-if-missing writes idempotent.

func ProfilePath(principalID string) string {
	return fmt.Sprintf("users/%s", principalID)
}

func OrganizationPath(orgID string) string {
	return fmt.Sprintf("organizations/%s", orgID)
}

func MembershipPath(orgID, principalID string) string {
	return fmt.Sprintf("organizations/%s/members/%s", orgID, principalID)
}

func InvitePath(orgID, inviteID string) string {
	return fmt.Sprintf("organizations/%s/invites/%s", orgID, inviteID)
}

func RequestPath(requestID string) string {
	return fmt.Sprintf("requests/%s", requestID)
}

func CommentPath(requestID, commentID string) string {
	return fmt.Sprintf("requests/%s/comments/%s", requestID, commentID)
}

func ActivityPath(activityID string) string {
	return fmt.Sprintf("activity/%s", activityID)
}

func NotificationPath(notificationID string) string {
	return fmt.Sprintf("notifications/%s", notificationID)
}

// Collection roots used by query subscriptions.
const (
	RequestsCollection      = "requests"
	ActivityCollection      = "activity"
	NotificationsCollection = "notifications"
)

// CommentsCollection returns the comments collection for a request.
func CommentsCollection(requestID string) string {
	return fmt.Sprintf("requests/%s/comments", requestID)
}

// InvitesCollection returns the invites collection for an organization.
func InvitesCollection(orgID string) string {
	return fmt.Sprintf("organizations/%s/invites", orgID)
}
