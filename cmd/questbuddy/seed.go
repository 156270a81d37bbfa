package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/learnbuddy/questbuddy/game/quest"
	"github.com/learnbuddy/questbuddy/model"
	"github.com/spf13/cobra"
	"gorm.io/gorm"
)

var (
	seedUser string
	seedFile string
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Give a user the quests defined in a YAML file",
	Example: `  questbuddy seed --user ada --file config/quests.yaml`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		logger, err := newLogger(cfg)
		if err != nil {
			return err
		}
		defer logger.Sync()

		file := seedFile
		if file == "" {
			file = cfg.Quest.SeedFile
		}
		if file == "" {
			return errors.New("no quest file: pass --file or set quest.seed_file")
		}
		defs, err := quest.LoadDefinitions(file)
		if err != nil {
			return err
		}

		db, err := openDB(cfg, logger)
		if err != nil {
			return err
		}
		var user model.User
		if err := db.Where("username = ?", seedUser).First(&user).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("user %q not found", seedUser)
			}
			return err
		}

		svc := quest.NewService(db, nil, nil, nil, quest.Config{}, logger)
		qs, err := svc.Seed(context.Background(), user.ID, defs)
		if err != nil {
			return err
		}
		for _, q := range qs {
			cmd.Printf("%d\t%s\t%s\t%d xp\n", q.ID, q.Type, q.Title, q.XP)
		}
		cmd.Printf("seeded %d quests for %s\n", len(qs), user.Username)
		return nil
	},
}

func init() {
	seedCmd.Flags().StringVarP(&seedUser, "user", "u", "", "username to receive the quests")
	seedCmd.Flags().StringVarP(&seedFile, "file", "f", "", "quest definitions file (defaults to quest.seed_file)")
	_ = seedCmd.MarkFlagRequired("user")
}
