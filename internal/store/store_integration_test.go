// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Terra Contributors

//go:build integration

package store_test

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention

	"github.com/terraatlas/terra/internal/auth"
	"github.com/terraatlas/terra/internal/auth/postgres"
	"github.com/terraatlas/terra/internal/store"
	"github.com/terraatlas/terra/pkg/errutil"
)

var _ = Describe("Migrator", func() {
	It("reports every embedded migration as applied", func() {
		migrator, err := store.NewMigrator(connStr)
		Expect(err).NotTo(HaveOccurred())
		defer migrator.Close()

		status, err := migrator.Status()
		Expect(err).NotTo(HaveOccurred())
		Expect(status.Dirty).To(BeFalse())
		Expect(status.Applied).To(Equal([]uint{1, 2}))
		Expect(status.Pending).To(BeEmpty())
	})
})

var _ = Describe("AccountRepository", func() {
	var (
		ctx      context.Context
		accounts *postgres.AccountRepository
	)

	BeforeEach(func() {
		ctx = context.Background()
		truncate(ctx)
		accounts = postgres.NewAccountRepository(pool)
	})

	newAccount := func(username string) *auth.Account {
		account, err := auth.NewAccount(username, "$argon2id$v=19$m=64,t=1,p=1$c2FsdA$aGFzaA")
		Expect(err).NotTo(HaveOccurred())
		Expect(accounts.Create(ctx, account)).To(Succeed())
		return account
	}

	It("lets exactly one concurrent registration win a username", func() {
		const racers = 8
		var (
			wg   sync.WaitGroup
			mu   sync.Mutex
			errs []error
		)
		for range racers {
			wg.Add(1)
			go func() {
				defer GinkgoRecover()
				defer wg.Done()
				account, err := auth.NewAccount("alice", "hash")
				Expect(err).NotTo(HaveOccurred())
				err = accounts.Create(ctx, account)
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}()
		}
		wg.Wait()

		var ok, dup int
		for _, err := range errs {
			switch {
			case err == nil:
				ok++
			case errutil.IsKind(err, errutil.KindDuplicateUsername):
				dup++
			}
		}
		Expect(ok).To(Equal(1))
		Expect(dup).To(Equal(racers - 1))
	})

	It("keeps favorites a set under concurrent adds", func() {
		account := newAccount("bob")
		const racers = 8
		var (
			wg      sync.WaitGroup
			mu      sync.Mutex
			success int
			already int
		)
		for range racers {
			wg.Add(1)
			go func() {
				defer GinkgoRecover()
				defer wg.Done()
				_, err := accounts.AddFavorite(ctx, account.ID, "US")
				mu.Lock()
				defer mu.Unlock()
				switch {
				case err == nil:
					success++
				case errutil.IsKind(err, errutil.KindAlreadyFavorited):
					already++
				}
			}()
		}
		wg.Wait()

		Expect(success).To(Equal(1))
		Expect(already).To(Equal(racers - 1))

		stored, err := accounts.GetByID(ctx, account.ID)
		Expect(err).NotTo(HaveOccurred())
		Expect(stored.Favorites).To(Equal([]string{"US"}))
	})

	It("preserves insertion order and loses no concurrent distinct adds", func() {
		account := newAccount("carol")
		codes := []string{"US", "FR", "JP", "BR", "DE", "IN"}
		var wg sync.WaitGroup
		for _, code := range codes {
			wg.Add(1)
			go func() {
				defer GinkgoRecover()
				defer wg.Done()
				_, err := accounts.AddFavorite(ctx, account.ID, code)
				Expect(err).NotTo(HaveOccurred())
			}()
		}
		wg.Wait()

		stored, err := accounts.GetByID(ctx, account.ID)
		Expect(err).NotTo(HaveOccurred())
		Expect(stored.Favorites).To(ConsistOf(codes))
	})

	It("classifies removal of an absent favorite", func() {
		account := newAccount("dave")
		_, err := accounts.RemoveFavorite(ctx, account.ID, "US")
		Expect(errutil.KindOf(err)).To(Equal(errutil.KindNotFavorited))

		_, err = accounts.AddFavorite(ctx, ulid.Make(), "US")
		Expect(errutil.KindOf(err)).To(Equal(errutil.KindAccountNotFound))
	})

	It("cascades account deletion to sessions", func() {
		account := newAccount("erin")
		sessions := postgres.NewSessionRepository(pool)
		now := time.Now().UTC()
		session, err := auth.NewSession(account.ID, "hash-erin", now, now.Add(time.Hour))
		Expect(err).NotTo(HaveOccurred())
		Expect(sessions.Create(ctx, session)).To(Succeed())

		Expect(accounts.Delete(ctx, account.ID)).To(Succeed())

		_, err = sessions.GetByTokenHash(ctx, "hash-erin")
		Expect(err).To(MatchError(auth.ErrNotFound))
	})
})

var _ = Describe("Janitor", func() {
	It("purges only expired sessions", func() {
		ctx := context.Background()
		truncate(ctx)

		account, err := auth.NewAccount("frank", "hash")
		Expect(err).NotTo(HaveOccurred())
		Expect(postgres.NewAccountRepository(pool).Create(ctx, account)).To(Succeed())

		sessions := postgres.NewSessionRepository(pool)
		now := time.Now().UTC()
		for i, expires := range []time.Time{now.Add(-time.Hour), now.Add(-time.Minute), now.Add(time.Hour)} {
			s, err := auth.NewSession(account.ID, fmt.Sprintf("hash-%d", i), now.Add(-2*time.Hour), expires)
			Expect(err).NotTo(HaveOccurred())
			Expect(sessions.Create(ctx, s)).To(Succeed())
		}

		janitor, err := store.NewJanitor(sessions)
		Expect(err).NotTo(HaveOccurred())
		n, err := janitor.Sweep(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(n).To(Equal(int64(2)))

		_, err = sessions.GetByTokenHash(ctx, "hash-2")
		Expect(err).NotTo(HaveOccurred())
	})
})
