package platform

import (
	"context"
	"fmt"
	"sync"
)

// RemovedCall records one member-removal request against a FakeClient.
type RemovedCall struct {
	ChatID int64
	UserID int64
	Block  bool
}

// FakeClient is an in-memory Client for tests. Failure fields inject errors;
// the *Failures counters fail that many calls before succeeding.
type FakeClient struct {
	mu sync.Mutex

	Deleted       []string
	Notices       []string
	Removed       []RemovedCall
	DirectRemoved []RemovedCall
	Added         []RemovedCall

	DeleteCalls    int
	DeleteErr      error
	DeleteFailures int
	NoticeErr      error
	RemoveErr      error
	RemoveFailures int
	DirectErr      error
	AddErr         error

	noticeSeq int
}

func NewFakeClient() *FakeClient {
	return &FakeClient{}
}

func (f *FakeClient) DeleteMessage(ctx context.Context, chatID int64, messageID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.DeleteCalls++
	if f.DeleteFailures > 0 {
		f.DeleteFailures--
		return fmt.Errorf("fake: transient delete failure")
	}
	if f.DeleteErr != nil {
		return f.DeleteErr
	}
	f.Deleted = append(f.Deleted, fmt.Sprintf("%d:%s", chatID, messageID))
	return nil
}

func (f *FakeClient) SendNotice(ctx context.Context, chatID int64, text string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.NoticeErr != nil {
		return "", f.NoticeErr
	}
	f.noticeSeq++
	f.Notices = append(f.Notices, text)
	return fmt.Sprintf("notice.%d", f.noticeSeq), nil
}

func (f *FakeClient) RemoveMember(ctx context.Context, chatID, userID int64, block bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.RemoveFailures > 0 {
		f.RemoveFailures--
		return fmt.Errorf("fake: transient remove failure")
	}
	if f.RemoveErr != nil {
		return f.RemoveErr
	}
	f.Removed = append(f.Removed, RemovedCall{ChatID: chatID, UserID: userID, Block: block})
	return nil
}

func (f *FakeClient) RemoveMemberDirect(ctx context.Context, chatID, userID int64, block bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.DirectErr != nil {
		return f.DirectErr
	}
	f.DirectRemoved = append(f.DirectRemoved, RemovedCall{ChatID: chatID, UserID: userID, Block: block})
	return nil
}

func (f *FakeClient) AddMember(ctx context.Context, chatID, userID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.AddErr != nil {
		return f.AddErr
	}
	f.Added = append(f.Added, RemovedCall{ChatID: chatID, UserID: userID})
	return nil
}
