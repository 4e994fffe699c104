package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"partnerdesk/config"
	"partnerdesk/utils"

	"github.com/spf13/cobra"
)

func newSessionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "session",
		Short: "Manage the partner session stored in Redis",
	}

	var token, phone string
	save := &cobra.Command{
		Use:   "save",
		Short: "Store a partner token under PARTNER_SESSION_ID",
		RunE: func(cmd *cobra.Command, args []string) error {
			if token == "" {
				return errors.New("--token is required")
			}
			if utils.TokenExpired(token, time.Now()) {
				return errors.New("token has already expired")
			}
			store, id, err := sessionStore()
			if err != nil {
				return err
			}
			partnerID, _ := utils.SubjectFromToken(token)
			now := time.Now()
			session := utils.PartnerSession{
				PartnerID:     partnerID,
				Phone:         phone,
				Status:        "approved",
				Token:         token,
				CreatedAt:     now,
				LastUpdatedAt: now,
			}
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := store.Save(ctx, id, session); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "session %s saved for partner %q\n", id, partnerID)
			return nil
		},
	}
	save.Flags().StringVar(&token, "token", "", "partner bearer token")
	save.Flags().StringVar(&phone, "phone", "", "partner phone number")

	show := &cobra.Command{
		Use:   "show",
		Short: "Print the stored session without its token",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, id, err := sessionStore()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			session, err := store.Get(ctx, id)
			if err != nil {
				return err
			}
			expired := utils.TokenExpired(session.Token, time.Now())
			fmt.Fprintf(cmd.OutOrStdout(), "partner=%s phone=%s status=%s expired=%t updated=%s\n",
				session.PartnerID, session.Phone, session.Status, expired, session.LastUpdatedAt.Format(time.RFC3339))
			return nil
		},
	}

	clearCmd := &cobra.Command{
		Use:   "clear",
		Short: "Remove the stored session",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, id, err := sessionStore()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return store.Delete(ctx, id)
		},
	}

	cmd.AddCommand(save, show, clearCmd)
	return cmd
}

func sessionStore() (*utils.SessionStore, string, error) {
	id := config.AppConfig.PartnerSessionID
	if id == "" {
		return nil, "", errors.New("PARTNER_SESSION_ID is not set")
	}
	if err := utils.InitSessionCache(); err != nil {
		return nil, "", err
	}
	return utils.NewSessionStore(utils.SessionCacheClient, sessionTTL), id, nil
}
