package store

import "time"

type Role string

const (
	RoleUser  Role = "user"
	RoleModel Role = "model"
)

func (r Role) Valid() bool {
	return r == RoleUser || r == RoleModel
}

type Message struct {
	Role      Role      `json:"role"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// Snapshot is the persisted part of a conversation.
type Snapshot struct {
	Messages  []Message `json:"messages"`
	AuditStep int       `json:"audit_step"`
}

const WelcomeText = `Bonjour Docteur Happy.

C'est un véritable privilège pour DOULIA de vous accompagner à l'Hôpital Laquintinie. Derrière votre regard d'experte, nous devinons une grande ambition pour la pédiatrie, malgré le poids de vos responsabilités quotidiennes.

Je suis ici pour apprendre de vous, afin de concevoir un assistant qui vous ressemble.

Pour commencer, si vous pouviez déléguer une seule tâche, administrative ou clinique, qui vous prend trop de temps aujourd'hui, laquelle choisiriez-vous ?`

func WelcomeMessage(now time.Time) Message {
	return Message{Role: RoleModel, Text: WelcomeText, Timestamp: now}
}
