package app

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"academy-of-heroes/internal/docstore"
	"academy-of-heroes/internal/domain"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// NewStudent is the input for creating a hero.
type NewStudent struct {
	StudentName   string           `json:"studentName"`
	CharacterName string           `json:"characterName"`
	Class         domain.HeroClass `json:"class"`
}

// StudentService manages a teacher's roster and hero progression.
type StudentService struct {
	store    docstore.Store
	presence PresenceTracker
	blobs    BlobStore
	gameLog  *GameLog
	logger   *zap.Logger
	now      func() time.Time
	linkTTL  time.Duration
}

func NewStudentService(store docstore.Store, presence PresenceTracker, blobs BlobStore, gameLog *GameLog, logger *zap.Logger) *StudentService {
	return &StudentService{
		store:    store,
		presence: presence,
		blobs:    blobs,
		gameLog:  gameLog,
		logger:   logger,
		now:      time.Now,
		linkTTL:  15 * time.Minute,
	}
}

// Create adds a level 1 hero with full pools for its class.
func (s *StudentService) Create(ctx context.Context, teacherID string, in NewStudent) (domain.Student, error) {
	in.StudentName = strings.TrimSpace(in.StudentName)
	in.CharacterName = strings.TrimSpace(in.CharacterName)
	if in.StudentName == "" || !in.Class.Valid() {
		return domain.Student{}, domain.ErrInvalidInput
	}
	if in.CharacterName == "" {
		in.CharacterName = in.StudentName
	}
	maxHP, maxMP := domain.MaxPools(in.Class, 1)
	now := s.now()
	st := domain.Student{
		ID:            uuid.NewString(),
		StudentName:   in.StudentName,
		CharacterName: in.CharacterName,
		Class:         in.Class,
		Level:         1,
		HP:            maxHP,
		MaxHP:         maxHP,
		MP:            maxMP,
		MaxMP:         maxMP,
		Inventory:     map[string]int{},
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.store.Set(ctx, domain.StudentPath(teacherID, st.ID), st); err != nil {
		return domain.Student{}, err
	}
	s.gameLog.Append(ctx, teacherID, teacherID, LogRoster, fmt.Sprintf("%s the %s joined the academy.", st.CharacterName, st.Class))
	return st, nil
}

func (s *StudentService) Get(ctx context.Context, teacherID, studentID string) (domain.Student, error) {
	var st domain.Student
	err := s.store.Get(ctx, domain.StudentPath(teacherID, studentID), &st)
	if errors.Is(err, docstore.ErrNotFound) {
		return st, domain.ErrStudentNotFound
	}
	if err != nil {
		return st, err
	}
	st.ID = studentID
	online, err := s.presence.Online(ctx, teacherID)
	if err != nil {
		s.logger.Warn("presence lookup failed", zap.String("teacher", teacherID), zap.Error(err))
	}
	st.Online = online[studentID]
	return st, nil
}

// List returns the roster with live online flags.
func (s *StudentService) List(ctx context.Context, teacherID string) ([]domain.Student, error) {
	docs, err := s.store.List(ctx, domain.StudentsCollection(teacherID))
	if err != nil {
		return nil, err
	}
	online, err := s.presence.Online(ctx, teacherID)
	if err != nil {
		s.logger.Warn("presence lookup failed", zap.String("teacher", teacherID), zap.Error(err))
	}
	out := make([]domain.Student, 0, len(docs))
	for _, doc := range docs {
		var st domain.Student
		if err := doc.Decode(&st); err != nil {
			return nil, err
		}
		st.ID = doc.ID()
		st.Online = online[st.ID]
		out = append(out, st)
	}
	return out, nil
}

func (s *StudentService) Delete(ctx context.Context, teacherID, studentID string) error {
	if _, err := s.Get(ctx, teacherID, studentID); err != nil {
		return err
	}
	return s.store.Delete(ctx, domain.StudentPath(teacherID, studentID))
}

// AwardRewards grants (or with negative values, removes) xp and gold.
func (s *StudentService) AwardRewards(ctx context.Context, teacherID, studentID string, xp, gold int) (domain.Student, error) {
	var (
		st      domain.Student
		leveled bool
	)
	err := s.store.RunTransaction(ctx, func(ctx context.Context, tx *docstore.Tx) error {
		if err := readStudent(tx, teacherID, studentID, &st); err != nil {
			return err
		}
		leveled = applyRewards(&st, xp, gold)
		st.UpdatedAt = s.now()
		return tx.Set(domain.StudentPath(teacherID, studentID), st)
	})
	if err != nil {
		return domain.Student{}, err
	}
	s.gameLog.Append(ctx, teacherID, studentID, LogProgress, fmt.Sprintf("%s received %d XP and %d gold.", heroName(&st), xp, gold))
	if leveled {
		s.gameLog.Append(ctx, teacherID, studentID, LogProgress, fmt.Sprintf("%s reached level %d!", heroName(&st), st.Level))
	}
	return st, nil
}

// RestoreAll refills every hero's hp and mp.
func (s *StudentService) RestoreAll(ctx context.Context, teacherID string) (int, error) {
	docs, err := s.store.List(ctx, domain.StudentsCollection(teacherID))
	if err != nil {
		return 0, err
	}
	restored := 0
	for _, doc := range docs {
		id := doc.ID()
		changed := false
		err := s.store.RunTransaction(ctx, func(ctx context.Context, tx *docstore.Tx) error {
			changed = false
			var st domain.Student
			if err := readStudent(tx, teacherID, id, &st); err != nil {
				return err
			}
			if st.HP == st.MaxHP && st.MP == st.MaxMP {
				return nil
			}
			st.HP, st.MP = st.MaxHP, st.MaxMP
			st.UpdatedAt = s.now()
			changed = true
			return tx.Set(domain.StudentPath(teacherID, id), st)
		})
		if err != nil && !errors.Is(err, domain.ErrStudentNotFound) {
			return restored, err
		}
		if err == nil && changed {
			restored++
		}
	}
	s.gameLog.Append(ctx, teacherID, teacherID, LogProgress, "The guild rested and recovered.")
	return restored, nil
}

// PurchaseBoon spends gold on a boon from the catalogue.
func (s *StudentService) PurchaseBoon(ctx context.Context, teacherID, studentID, boonID string) Result {
	boon, found := domain.LookupBoon(boonID)
	if !found {
		return Fail(domain.Reject(domain.ErrUnknownBoon, "That boon is not for sale."))
	}
	var st domain.Student
	err := s.store.RunTransaction(ctx, func(ctx context.Context, tx *docstore.Tx) error {
		if err := readStudent(tx, teacherID, studentID, &st); err != nil {
			return err
		}
		if st.OwnsBoon(boon.ID) {
			return domain.Reject(domain.ErrBoonOwned, "You already own "+boon.Name+".")
		}
		if st.Gold < boon.Cost {
			return domain.Reject(domain.ErrInsufficientGold, fmt.Sprintf("%s costs %d gold.", boon.Name, boon.Cost))
		}
		st.Gold -= boon.Cost
		st.OwnedBoonIDs = append(st.OwnedBoonIDs, boon.ID)
		st.UpdatedAt = s.now()
		return tx.Set(domain.StudentPath(teacherID, studentID), st)
	})
	if err != nil {
		if IsPlatformError(err) {
			s.logger.Error("purchase boon failed", zap.String("teacher", teacherID), zap.Error(err))
		}
		return Fail(err)
	}
	s.gameLog.Append(ctx, teacherID, studentID, LogShop, fmt.Sprintf("%s purchased %s.", heroName(&st), boon.Name))
	return ok("Purchased "+boon.Name+"!", st)
}

// SetAvatar uploads an avatar image and links it to the hero.
func (s *StudentService) SetAvatar(ctx context.Context, teacherID, studentID, filename string, r io.Reader) (domain.Student, error) {
	ext := strings.ToLower(path.Ext(filename))
	switch ext {
	case ".png", ".jpg", ".jpeg", ".gif", ".webp":
	default:
		return domain.Student{}, domain.ErrInvalidInput
	}
	if _, err := s.Get(ctx, teacherID, studentID); err != nil {
		return domain.Student{}, err
	}

	key := fmt.Sprintf("avatars/%s/%s%s", teacherID, studentID, ext)
	if err := s.blobs.Put(ctx, key, r); err != nil {
		return domain.Student{}, err
	}

	var st domain.Student
	err := s.store.RunTransaction(ctx, func(ctx context.Context, tx *docstore.Tx) error {
		if err := readStudent(tx, teacherID, studentID, &st); err != nil {
			return err
		}
		st.AvatarKey = key
		st.UpdatedAt = s.now()
		return tx.Set(domain.StudentPath(teacherID, studentID), st)
	})
	return st, err
}

// AvatarURL returns a signed link to the hero's avatar.
func (s *StudentService) AvatarURL(ctx context.Context, teacherID, studentID string) (string, error) {
	st, err := s.Get(ctx, teacherID, studentID)
	if err != nil {
		return "", err
	}
	if st.AvatarKey == "" {
		return "", domain.ErrInvalidInput
	}
	return s.blobs.SignedURL(st.AvatarKey, s.linkTTL)
}

type rosterBackup struct {
	TeacherID  string           `json:"teacherId"`
	ExportedAt time.Time        `json:"exportedAt"`
	Students   []domain.Student `json:"students"`
}

// Backup exports the roster as JSON to object storage and returns a signed link.
func (s *StudentService) Backup(ctx context.Context, teacherID string) (string, error) {
	students, err := s.List(ctx, teacherID)
	if err != nil {
		return "", err
	}
	now := s.now()
	data, err := json.MarshalIndent(rosterBackup{TeacherID: teacherID, ExportedAt: now, Students: students}, "", "  ")
	if err != nil {
		return "", err
	}
	key := fmt.Sprintf("backups/%s/%s.json", teacherID, now.UTC().Format("20060102T150405Z"))
	if err := s.blobs.Put(ctx, key, bytes.NewReader(data)); err != nil {
		return "", err
	}
	return s.blobs.SignedURL(key, s.linkTTL)
}

// SetOnline updates a hero's presence.
func (s *StudentService) SetOnline(ctx context.Context, teacherID, studentID string, online bool) error {
	if online {
		return s.presence.MarkOnline(ctx, teacherID, studentID)
	}
	return s.presence.MarkOffline(ctx, teacherID, studentID)
}
