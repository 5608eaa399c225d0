package domain

// ParticipationRole is a user's role inside one room.
type ParticipationRole string

const (
	RoleOwner     ParticipationRole = "OWNER"
	RoleTeacher   ParticipationRole = "TEACHER"
	RoleModerator ParticipationRole = "MODERATOR"
	RoleStudent   ParticipationRole = "STUDENT"
)

func (r ParticipationRole) String() string { return string(r) }

func (r ParticipationRole) IsValid() bool {
	switch r {
	case RoleOwner, RoleTeacher, RoleModerator, RoleStudent:
		return true
	}
	return false
}

// IsModerator reports whether the role belongs to the moderator tier
// (may manage topics, grade homework and moderate posts).
func (r ParticipationRole) IsModerator() bool {
	switch r {
	case RoleOwner, RoleTeacher, RoleModerator:
		return true
	}
	return false
}

// ModeratorRoles lists the moderator-tier roles.
func ModeratorRoles() []string {
	return []string{string(RoleOwner), string(RoleTeacher), string(RoleModerator)}
}

// HomeworkStatus is the lifecycle state of a homework assignment.
type HomeworkStatus string

const (
	HomeworkAssigned  HomeworkStatus = "ASSIGNED"
	HomeworkSubmitted HomeworkStatus = "SUBMITTED"
	HomeworkGraded    HomeworkStatus = "GRADED"
	HomeworkReturned  HomeworkStatus = "RETURNED"
)

func (s HomeworkStatus) String() string { return string(s) }

func (s HomeworkStatus) IsValid() bool {
	switch s {
	case HomeworkAssigned, HomeworkSubmitted, HomeworkGraded, HomeworkReturned:
		return true
	}
	return false
}
