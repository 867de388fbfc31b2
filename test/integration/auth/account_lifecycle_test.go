// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 StudyShare Contributors

//go:build integration

package auth_test

import (
	"time"

	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention

	"github.com/studyshare/studyshare/internal/auth"
	"github.com/studyshare/studyshare/pkg/errutil"
)

var _ = Describe("Account lifecycle", func() {
	Describe("registration and login", func() {
		It("registers, verifies and logs in", func() {
			email := uniqueEmail()
			view := registerActive(email, "correct horse battery")

			Expect(view.Email).To(Equal(email))
			Expect(view.Role).To(Equal(auth.RoleUser))

			result, err := env.Service.Login(env.ctx, email, "correct horse battery")
			Expect(err).NotTo(HaveOccurred())
			Expect(result.AccessToken).NotTo(BeEmpty())
			Expect(result.RefreshToken).NotTo(BeEmpty())
			Expect(result.Account.LastLoginAt).NotTo(BeNil())
		})

		It("refuses login before email verification", func() {
			email := uniqueEmail()
			_, err := env.Service.Register(env.ctx, email, "correct horse battery")
			Expect(err).NotTo(HaveOccurred())

			_, err = env.Service.Login(env.ctx, email, "correct horse battery")
			Expect(err).To(HaveOccurred())
			Expect(errutil.OopsCode(err)).To(Equal(auth.CodeAccountInactive))
		})

		It("refreshes an access token", func() {
			email := uniqueEmail()
			registerActive(email, "correct horse battery")

			result, err := env.Service.Login(env.ctx, email, "correct horse battery")
			Expect(err).NotTo(HaveOccurred())

			access, err := env.Service.Refresh(env.ctx, result.RefreshToken)
			Expect(err).NotTo(HaveOccurred())
			Expect(access).NotTo(BeEmpty())

			_, err = env.Service.Refresh(env.ctx, result.AccessToken)
			Expect(err).To(HaveOccurred())
			Expect(errutil.OopsCode(err)).To(Equal(auth.CodeTokenInvalid))
		})
	})

	Describe("lockout", func() {
		It("locks after repeated failures and releases after the cooldown", func() {
			email := uniqueEmail()
			registerActive(email, "correct horse battery")

			for range lockoutThreshold {
				_, err := env.Service.Login(env.ctx, email, "wrong password")
				Expect(err).To(HaveOccurred())
				Expect(errutil.OopsCode(err)).To(Equal(auth.CodeInvalidCredentials))
			}

			// Correct password is refused while the lock holds.
			_, err := env.Service.Login(env.ctx, email, "correct horse battery")
			Expect(err).To(HaveOccurred())
			Expect(errutil.OopsCode(err)).To(Equal(auth.CodeAccountLocked))

			// After the cooldown the next attempt clears the lock.
			Eventually(func() error {
				_, err := env.Service.Login(env.ctx, email, "correct horse battery")
				return err
			}).WithTimeout(2 * lockoutCooldown).WithPolling(200 * time.Millisecond).
				Should(Succeed())
		})

		It("restarts the counter after a successful login", func() {
			email := uniqueEmail()
			registerActive(email, "correct horse battery")

			for range lockoutThreshold - 1 {
				_, err := env.Service.Login(env.ctx, email, "wrong password")
				Expect(err).To(HaveOccurred())
			}

			_, err := env.Service.Login(env.ctx, email, "correct horse battery")
			Expect(err).NotTo(HaveOccurred())

			// The reset counter means one more failure does not lock.
			_, err = env.Service.Login(env.ctx, email, "wrong password")
			Expect(errutil.OopsCode(err)).To(Equal(auth.CodeInvalidCredentials))

			_, err = env.Service.Login(env.ctx, email, "correct horse battery")
			Expect(err).NotTo(HaveOccurred())
		})
	})

	Describe("password reset", func() {
		It("resets the password end to end", func() {
			email := uniqueEmail()
			registerActive(email, "old password here")

			Expect(env.Reset.ForgotPassword(env.ctx, email)).To(Succeed())
			token := env.Deliverer.tokenFor(email)
			Expect(token).NotTo(BeEmpty())

			Expect(env.Reset.ResetPassword(env.ctx, token, "new password here")).To(Succeed())

			_, err := env.Service.Login(env.ctx, email, "old password here")
			Expect(err).To(HaveOccurred())
			Expect(errutil.OopsCode(err)).To(Equal(auth.CodeInvalidCredentials))

			_, err = env.Service.Login(env.ctx, email, "new password here")
			Expect(err).NotTo(HaveOccurred())
		})

		It("stays silent for unknown addresses", func() {
			email := uniqueEmail()
			Expect(env.Reset.ForgotPassword(env.ctx, email)).To(Succeed())
			Expect(env.Deliverer.tokenFor(email)).To(BeEmpty())
		})

		It("rejects an access token as reset token", func() {
			email := uniqueEmail()
			registerActive(email, "correct horse battery")

			result, err := env.Service.Login(env.ctx, email, "correct horse battery")
			Expect(err).NotTo(HaveOccurred())

			err = env.Reset.ResetPassword(env.ctx, result.AccessToken, "new password here")
			Expect(err).To(HaveOccurred())
			Expect(errutil.OopsCode(err)).To(Equal(auth.CodeTokenInvalid))
		})
	})

	Describe("password change", func() {
		It("requires the current password", func() {
			email := uniqueEmail()
			view := registerActive(email, "old password here")

			err := env.Service.ChangePassword(env.ctx, view.ID, "not the password", "new password here")
			Expect(err).To(HaveOccurred())
			Expect(errutil.OopsCode(err)).To(Equal(auth.CodeInvalidCredentials))

			Expect(env.Service.ChangePassword(env.ctx, view.ID, "old password here", "new password here")).
				To(Succeed())

			_, err = env.Service.Login(env.ctx, email, "new password here")
			Expect(err).NotTo(HaveOccurred())
		})
	})

	Describe("logout", func() {
		It("stamps the logout time", func() {
			email := uniqueEmail()
			view := registerActive(email, "correct horse battery")

			Expect(env.Service.Logout(env.ctx, view.ID)).To(Succeed())
		})
	})
})
