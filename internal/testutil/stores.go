// Package testutil provides in-memory stores for package tests.
package testutil

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pace-quizz/backend/internal/models"
)

// Stores bundles one of each in-memory store.
type Stores struct {
	Sessions     *Sessions
	Questions    *Questions
	Participants *Participants
	Responses    *Responses
	Logs         *Logs
	Users        *Users
}

// NewStores returns empty stores.
func NewStores() *Stores {
	return &Stores{
		Sessions:     &Sessions{byID: make(map[uuid.UUID]*models.Session)},
		Questions:    &Questions{byID: make(map[uuid.UUID]*models.Question)},
		Participants: &Participants{byID: make(map[uuid.UUID]*models.Participant)},
		Responses:    &Responses{byKey: make(map[[2]uuid.UUID]*models.Response)},
		Logs:         &Logs{},
		Users:        &Users{byID: make(map[uuid.UUID]*models.User)},
	}
}

// Sessions is an in-memory session store. PINs are unique among non-FINISHED sessions.
type Sessions struct {
	mu   sync.Mutex
	byID map[uuid.UUID]*models.Session
	// ForcePinConflicts makes the next n Create calls fail with a PIN conflict.
	ForcePinConflicts int
}

func (s *Sessions) pinTakenLocked(pin string, exclude uuid.UUID) bool {
	for _, other := range s.byID {
		if other.ID != exclude && other.PIN == pin && other.Status != models.SessionStatusFinished {
			return true
		}
	}
	return false
}

func (s *Sessions) Create(_ context.Context, sess *models.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ForcePinConflicts > 0 {
		s.ForcePinConflicts--
		return fmt.Errorf("pin %s: %w", sess.PIN, models.ErrConflict)
	}
	if s.pinTakenLocked(sess.PIN, uuid.Nil) {
		return fmt.Errorf("pin %s: %w", sess.PIN, models.ErrConflict)
	}
	sess.ID = uuid.New()
	sess.CreatedAt = time.Now()
	sess.UpdatedAt = sess.CreatedAt
	cp := *sess
	s.byID[sess.ID] = &cp
	return nil
}

func (s *Sessions) GetByID(_ context.Context, id uuid.UUID) (*models.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.byID[id]
	if !ok {
		return nil, fmt.Errorf("session %s: %w", id, models.ErrNotFound)
	}
	cp := *sess
	return &cp, nil
}

func (s *Sessions) GetByPin(_ context.Context, pin string) (*models.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var found *models.Session
	for _, sess := range s.byID {
		if sess.PIN != pin {
			continue
		}
		if found == nil || sess.Status != models.SessionStatusFinished {
			found = sess
		}
	}
	if found == nil {
		return nil, fmt.Errorf("session pin %s: %w", pin, models.ErrNotFound)
	}
	cp := *found
	return &cp, nil
}

func (s *Sessions) UpdateStatus(_ context.Context, id uuid.UUID, to models.SessionStatus, from ...models.SessionStatus) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.byID[id]
	if !ok {
		return false, fmt.Errorf("session %s: %w", id, models.ErrNotFound)
	}
	if len(from) > 0 {
		matched := false
		for _, f := range from {
			matched = matched || sess.Status == f
		}
		if !matched {
			return false, nil
		}
	}
	if to != models.SessionStatusFinished && s.pinTakenLocked(sess.PIN, id) {
		return false, fmt.Errorf("pin %s: %w", sess.PIN, models.ErrConflict)
	}
	sess.Status = to
	sess.UpdatedAt = time.Now()
	return true, nil
}

func (s *Sessions) UpdatePin(_ context.Context, id uuid.UUID, pin string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.byID[id]
	if !ok {
		return fmt.Errorf("session %s: %w", id, models.ErrNotFound)
	}
	if s.pinTakenLocked(pin, id) {
		return fmt.Errorf("pin %s: %w", pin, models.ErrConflict)
	}
	sess.PIN = pin
	return nil
}

func (s *Sessions) PinInUse(_ context.Context, pin string, exclude uuid.UUID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pinTakenLocked(pin, exclude), nil
}

func (s *Sessions) ListByHost(_ context.Context, hostID uuid.UUID) ([]models.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Session
	for _, sess := range s.byID {
		if sess.HostID == hostID {
			out = append(out, *sess)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *Sessions) ListAll(_ context.Context) ([]models.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Session, 0, len(s.byID))
	for _, sess := range s.byID {
		out = append(out, *sess)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *Sessions) Update(_ context.Context, id uuid.UUID, p models.SessionPatch) (*models.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.byID[id]
	if !ok {
		return nil, fmt.Errorf("session %s: %w", id, models.ErrNotFound)
	}
	if p.Name != nil {
		sess.Name = *p.Name
	}
	if p.BannerURL != nil {
		sess.BannerURL = p.BannerURL
	}
	if p.ThankYouMessage != nil {
		sess.ThankYouMessage = p.ThankYouMessage
	}
	cp := *sess
	return &cp, nil
}

func (s *Sessions) Delete(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byID[id]; !ok {
		return fmt.Errorf("session %s: %w", id, models.ErrNotFound)
	}
	delete(s.byID, id)
	return nil
}

func (s *Sessions) IsHost(_ context.Context, sessionID, userID uuid.UUID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.byID[sessionID]
	if !ok {
		return false, fmt.Errorf("session %s: %w", sessionID, models.ErrNotFound)
	}
	return sess.HostID == userID, nil
}

// Put stores sess as is, for arranging test fixtures.
func (s *Sessions) Put(sess models.Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byID[sess.ID] = &sess
}

// Questions is an in-memory question store.
type Questions struct {
	mu   sync.Mutex
	byID map[uuid.UUID]*models.Question
}

func (q *Questions) ListBySession(_ context.Context, sessionID uuid.UUID) ([]models.Question, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	var out []models.Question
	for _, qu := range q.byID {
		if qu.SessionID == sessionID {
			out = append(out, *qu)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Order < out[j].Order })
	return out, nil
}

func (q *Questions) Create(_ context.Context, qu *models.Question) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	maxOrder := -1
	for _, other := range q.byID {
		if other.SessionID != qu.SessionID {
			continue
		}
		if other.Order == qu.Order && qu.Order >= 0 {
			return fmt.Errorf("question order %d: %w", qu.Order, models.ErrConflict)
		}
		if other.Order > maxOrder {
			maxOrder = other.Order
		}
	}
	if qu.Order < 0 {
		qu.Order = maxOrder + 1
	}
	qu.ID = uuid.New()
	qu.CreatedAt = time.Now()
	qu.UpdatedAt = qu.CreatedAt
	cp := *qu
	q.byID[qu.ID] = &cp
	return nil
}

func (q *Questions) GetByID(_ context.Context, id uuid.UUID) (*models.Question, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	qu, ok := q.byID[id]
	if !ok {
		return nil, fmt.Errorf("question %s: %w", id, models.ErrNotFound)
	}
	cp := *qu
	return &cp, nil
}

func (q *Questions) Update(_ context.Context, qu *models.Question) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if _, ok := q.byID[qu.ID]; !ok {
		return fmt.Errorf("question %s: %w", qu.ID, models.ErrNotFound)
	}
	qu.UpdatedAt = time.Now()
	cp := *qu
	q.byID[qu.ID] = &cp
	return nil
}

func (q *Questions) Delete(_ context.Context, id uuid.UUID) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if _, ok := q.byID[id]; !ok {
		return fmt.Errorf("question %s: %w", id, models.ErrNotFound)
	}
	delete(q.byID, id)
	return nil
}

// Participants is an in-memory participant store.
type Participants struct {
	mu   sync.Mutex
	byID map[uuid.UUID]*models.Participant
}

func (p *Participants) UpsertByNickname(_ context.Context, sessionID uuid.UUID, nickname *string, avatar string) (*models.Participant, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if nickname != nil && *nickname != "" {
		for _, other := range p.byID {
			if other.SessionID == sessionID && other.Nickname != nil && *other.Nickname == *nickname {
				other.Avatar = avatar
				cp := *other
				return &cp, nil
			}
		}
	}
	part := &models.Participant{ID: uuid.New(), SessionID: sessionID, Nickname: nickname, Avatar: avatar, CreatedAt: time.Now()}
	p.byID[part.ID] = part
	cp := *part
	return &cp, nil
}

func (p *Participants) GetByID(_ context.Context, id uuid.UUID) (*models.Participant, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	part, ok := p.byID[id]
	if !ok {
		return nil, fmt.Errorf("participant %s: %w", id, models.ErrNotFound)
	}
	cp := *part
	return &cp, nil
}

func (p *Participants) ListBySession(_ context.Context, sessionID uuid.UUID) ([]models.Participant, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []models.Participant
	for _, part := range p.byID {
		if part.SessionID == sessionID {
			out = append(out, *part)
		}
	}
	return out, nil
}

func (p *Participants) DeleteBySession(_ context.Context, sessionID uuid.UUID) (int64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	var n int64
	for id, part := range p.byID {
		if part.SessionID == sessionID {
			delete(p.byID, id)
			n++
		}
	}
	return n, nil
}

// Responses is an in-memory response store keyed by (participant, question).
type Responses struct {
	mu    sync.Mutex
	byKey map[[2]uuid.UUID]*models.Response
	// FailUpsert, when set, is returned by Upsert.
	FailUpsert error
	Upserts    int
}

func (r *Responses) Upsert(_ context.Context, participantID, questionID uuid.UUID, answer json.RawMessage, timeTaken int) (*models.Response, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.FailUpsert != nil {
		return nil, r.FailUpsert
	}
	r.Upserts++
	key := [2]uuid.UUID{participantID, questionID}
	now := time.Now()
	resp, ok := r.byKey[key]
	if !ok {
		resp = &models.Response{ID: uuid.New(), ParticipantID: participantID, QuestionID: questionID, CreatedAt: now}
		r.byKey[key] = resp
	}
	resp.Answer = answer
	resp.TimeTaken = timeTaken
	resp.UpdatedAt = now
	cp := *resp
	return &cp, nil
}

func (r *Responses) DeleteAllForQuestions(_ context.Context, questionIDs []uuid.UUID) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	want := make(map[uuid.UUID]struct{}, len(questionIDs))
	for _, id := range questionIDs {
		want[id] = struct{}{}
	}
	var n int64
	for k, resp := range r.byKey {
		if _, ok := want[resp.QuestionID]; ok {
			delete(r.byKey, k)
			n++
		}
	}
	return n, nil
}

func (r *Responses) ListByQuestions(_ context.Context, questionIDs []uuid.UUID) ([]models.Response, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	want := make(map[uuid.UUID]struct{}, len(questionIDs))
	for _, id := range questionIDs {
		want[id] = struct{}{}
	}
	var out []models.Response
	for _, resp := range r.byKey {
		if _, ok := want[resp.QuestionID]; ok {
			out = append(out, *resp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r *Responses) CountByOption(_ context.Context, questionID uuid.UUID) (map[string]int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]int64)
	for _, resp := range r.byKey {
		if resp.QuestionID != questionID {
			continue
		}
		a, err := models.ParseAnswer(resp.Answer)
		if err != nil {
			continue
		}
		if key := a.TallyKey(); key != "" {
			out[key]++
		}
	}
	return out, nil
}

// Count returns the number of stored responses.
func (r *Responses) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byKey)
}

// Logs is an in-memory activity log.
type Logs struct {
	mu      sync.Mutex
	entries []models.ActivityLog
}

func (l *Logs) Append(_ context.Context, sessionID uuid.UUID, action models.ActivityAction, details any) error {
	raw, err := json.Marshal(details)
	if err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, models.ActivityLog{
		ID: uuid.New(), SessionID: sessionID, Action: action, Details: raw, CreatedAt: time.Now(),
	})
	return nil
}

func (l *Logs) ListRecent(_ context.Context, sessionID uuid.UUID, limit int) ([]models.ActivityLog, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []models.ActivityLog
	for i := len(l.entries) - 1; i >= 0 && len(out) < limit; i-- {
		if l.entries[i].SessionID == sessionID {
			out = append(out, l.entries[i])
		}
	}
	return out, nil
}

// Actions returns the logged actions of sessionID in append order.
func (l *Logs) Actions(sessionID uuid.UUID) []models.ActivityAction {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []models.ActivityAction
	for _, e := range l.entries {
		if e.SessionID == sessionID {
			out = append(out, e.Action)
		}
	}
	return out
}

// Users is an in-memory presenter account store.
type Users struct {
	mu   sync.Mutex
	byID map[uuid.UUID]*models.User
}

func (u *Users) Create(_ context.Context, email, passwordHash, name string, role models.Role) (*models.User, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	for _, other := range u.byID {
		if other.Email == email {
			return nil, fmt.Errorf("email %s: %w", email, models.ErrConflict)
		}
	}
	user := &models.User{ID: uuid.New(), Email: email, Password: passwordHash, Name: name, Role: role, CreatedAt: time.Now()}
	u.byID[user.ID] = user
	cp := *user
	return &cp, nil
}

func (u *Users) GetByEmail(_ context.Context, email string) (*models.User, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	for _, user := range u.byID {
		if user.Email == email {
			cp := *user
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("user %s: %w", email, models.ErrNotFound)
}

func (u *Users) GetByID(_ context.Context, id uuid.UUID) (*models.User, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	user, ok := u.byID[id]
	if !ok {
		return nil, fmt.Errorf("user %s: %w", id, models.ErrNotFound)
	}
	cp := *user
	return &cp, nil
}

func (u *Users) List(_ context.Context) ([]models.User, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	out := make([]models.User, 0, len(u.byID))
	for _, user := range u.byID {
		out = append(out, *user)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (u *Users) Update(_ context.Context, id uuid.UUID, p models.UserPatch) (*models.User, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	user, ok := u.byID[id]
	if !ok {
		return nil, fmt.Errorf("user %s: %w", id, models.ErrNotFound)
	}
	if p.Email != nil {
		for _, other := range u.byID {
			if other.ID != id && other.Email == *p.Email {
				return nil, fmt.Errorf("email %s: %w", *p.Email, models.ErrConflict)
			}
		}
		user.Email = *p.Email
	}
	if p.Name != nil {
		user.Name = *p.Name
	}
	if p.PasswordHash != nil {
		user.Password = *p.PasswordHash
	}
	if p.Role != nil {
		user.Role = *p.Role
	}
	user.UpdatedAt = time.Now()
	cp := *user
	return &cp, nil
}

func (u *Users) Delete(_ context.Context, id uuid.UUID) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	if _, ok := u.byID[id]; !ok {
		return fmt.Errorf("user %s: %w", id, models.ErrNotFound)
	}
	delete(u.byID, id)
	return nil
}
