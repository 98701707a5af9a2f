// Package main provides the CLI entrypoint for shelterq.
package main

import (
	"encoding/base64"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/petfolio/shelterq/internal/config"
	"github.com/petfolio/shelterq/internal/logger"
	"github.com/petfolio/shelterq/internal/petsapi"
	"github.com/petfolio/shelterq/internal/queue"
	"github.com/petfolio/shelterq/internal/sync"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var configPath string

var rootCmd = &cobra.Command{
	Use:   "shelterq",
	Short: "Buffer pet record changes offline and replay them on reconnect",
	Long: `shelterq queues pet record creates and updates on the local device
while connectivity is intermittent, and replays them in order against
the pets API once the device is back online.`,
}

var (
	addName        string
	addSpecies     string
	addBreed       string
	addAgeMonths   int
	addGender      string
	addSize        string
	addDescription string
	addShelter     string
	addPhotos      []string
)

var addCmd = &cobra.Command{
	Use:   "add",
	Short: "Queue the creation of a pet record",
	Long: `Queue the creation of a pet record for the next sync pass.

Photo files given with --photo are embedded into the queued operation and
uploaded when the operation is replayed.`,
	Args: cobra.NoArgs,
	RunE: runAdd,
}

var (
	updateName        string
	updateBreed       string
	updateAgeMonths   int
	updateDescription string
	updateStatus      string
	updatePhotos      []string
)

var updateCmd = &cobra.Command{
	Use:   "update <pet-id>",
	Short: "Queue an edit of an existing pet record",
	Long: `Queue an edit of an existing pet record for the next sync pass.

Only the flags you pass are changed. --status queues a separate status
transition that is replayed after the field edit succeeds.`,
	Args: cobra.ExactArgs(1),
	RunE: runUpdate,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the pending operation backlog",
	Args:  cobra.NoArgs,
	RunE:  runStatus,
}

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Replay pending operations against the pets API",
	Args:  cobra.NoArgs,
	RunE:  runSync,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default ~/.config/shelterq/config.yml)")

	addCmd.Flags().StringVar(&addName, "name", "", "pet name")
	addCmd.Flags().StringVar(&addSpecies, "species", "", "species, e.g. dog or cat")
	addCmd.Flags().StringVar(&addBreed, "breed", "", "breed")
	addCmd.Flags().IntVar(&addAgeMonths, "age-months", 0, "age in months")
	addCmd.Flags().StringVar(&addGender, "gender", "", "gender")
	addCmd.Flags().StringVar(&addSize, "size", "", "size category")
	addCmd.Flags().StringVar(&addDescription, "description", "", "description")
	addCmd.Flags().StringVar(&addShelter, "shelter", "", "shelter the record is created under")
	addCmd.Flags().StringArrayVar(&addPhotos, "photo", nil, "photo file to attach (repeatable)")
	addCmd.MarkFlagRequired("name")
	addCmd.MarkFlagRequired("species")

	updateCmd.Flags().StringVar(&updateName, "name", "", "pet name")
	updateCmd.Flags().StringVar(&updateBreed, "breed", "", "breed")
	updateCmd.Flags().IntVar(&updateAgeMonths, "age-months", 0, "age in months")
	updateCmd.Flags().StringVar(&updateDescription, "description", "", "description")
	updateCmd.Flags().StringVar(&updateStatus, "status", "", "new status, e.g. available or adopted")
	updateCmd.Flags().StringArrayVar(&updatePhotos, "photo", nil, "photo file to attach (repeatable)")

	rootCmd.AddCommand(addCmd)
	rootCmd.AddCommand(updateCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(syncCmd)
}

// setup loads configuration and opens the queue store. The returned cleanup
// closes the underlying database.
func setup() (config.Config, *queue.Store, func(), error) {
	path := configPath
	if path == "" {
		var err error
		path, err = config.DefaultPath()
		if err != nil {
			return config.Config{}, nil, nil, err
		}
	}

	cfg, err := config.Load(path)
	if err != nil {
		return config.Config{}, nil, nil, err
	}

	level, err := logger.ParseLevel(cfg.LogLevel)
	if err != nil {
		return config.Config{}, nil, nil, err
	}
	logger.SetLevel(level)

	if err := os.MkdirAll(filepath.Dir(cfg.QueuePath), 0755); err != nil {
		return config.Config{}, nil, nil, fmt.Errorf("failed to create queue directory: %w", err)
	}

	repo, err := queue.NewSQLiteRepository(cfg.QueuePath)
	if err != nil {
		return config.Config{}, nil, nil, fmt.Errorf("failed to open queue database: %w", err)
	}

	store := queue.NewStore(repo)
	unsubscribe := store.Subscribe(func() {
		logger.Debug("queue: %d operations pending", store.Count())
	})

	cleanup := func() {
		unsubscribe()
		if err := repo.Close(); err != nil {
			logger.Warn("failed to close queue database: %v", err)
		}
	}

	return cfg, store, cleanup, nil
}

// encodePhoto reads a local image file and embeds it as a data URI so the
// queued operation is self-contained until replay uploads it.
func encodePhoto(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read photo %s: %w", path, err)
	}

	mediaType := mime.TypeByExtension(filepath.Ext(path))
	if mediaType == "" {
		mediaType = "application/octet-stream"
	}

	return "data:" + mediaType + ";base64," + base64.StdEncoding.EncodeToString(data), nil
}

func runAdd(cmd *cobra.Command, args []string) error {
	_, store, cleanup, err := setup()
	if err != nil {
		return err
	}
	defer cleanup()

	pet := queue.PetRecord{
		Name:        addName,
		Species:     addSpecies,
		Breed:       addBreed,
		AgeMonths:   addAgeMonths,
		Gender:      addGender,
		Size:        addSize,
		Description: addDescription,
	}
	for _, path := range addPhotos {
		ref, err := encodePhoto(path)
		if err != nil {
			return err
		}
		pet.Photos = append(pet.Photos, ref)
	}

	op, err := store.Enqueue(queue.NewCreate(pet, addShelter))
	if err != nil {
		return fmt.Errorf("failed to queue create: %w", err)
	}

	fmt.Printf("queued create %s (%d operations pending)\n", op.ID, store.Count())
	return nil
}

func runUpdate(cmd *cobra.Command, args []string) error {
	petID := args[0]

	_, store, cleanup, err := setup()
	if err != nil {
		return err
	}
	defer cleanup()

	var fields queue.PetRecord
	if cmd.Flags().Changed("name") {
		fields.Name = updateName
	}
	if cmd.Flags().Changed("breed") {
		fields.Breed = updateBreed
	}
	if cmd.Flags().Changed("age-months") {
		fields.AgeMonths = updateAgeMonths
	}
	if cmd.Flags().Changed("description") {
		fields.Description = updateDescription
	}
	for _, path := range updatePhotos {
		ref, err := encodePhoto(path)
		if err != nil {
			return err
		}
		fields.Photos = append(fields.Photos, ref)
	}

	statusChanged := cmd.Flags().Changed("status")
	op, err := store.Enqueue(queue.NewUpdate(petID, fields, statusChanged, updateStatus))
	if err != nil {
		return fmt.Errorf("failed to queue update: %w", err)
	}

	fmt.Printf("queued update %s for pet %s (%d operations pending)\n", op.ID, petID, store.Count())
	return nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	_, store, cleanup, err := setup()
	if err != nil {
		return err
	}
	defer cleanup()

	ops := store.List()
	if len(ops) == 0 {
		fmt.Println("no operations pending")
		return nil
	}

	fmt.Printf("%d operations pending\n", len(ops))
	for _, op := range ops {
		target := op.TargetID
		if op.Kind == queue.KindCreate && op.Create != nil {
			target = op.Create.Pet.Name
		}
		fmt.Printf("  %s  %-6s  %-20s  queued %s\n",
			op.ID, op.Kind, target, op.EnqueuedAt.Local().Format(time.RFC3339))
	}
	return nil
}

func runSync(cmd *cobra.Command, args []string) error {
	cfg, store, cleanup, err := setup()
	if err != nil {
		return err
	}
	defer cleanup()

	client := petsapi.New(cfg.ServerURL, cfg.Token)
	engine := sync.NewEngine(store, client, func() bool {
		return client.Reachable(3 * time.Second)
	})

	res, err := engine.Sync()
	if err != nil {
		return fmt.Errorf("sync failed: %w", err)
	}

	fmt.Printf("synced %d, failed %d, %d operations pending\n", res.Synced, res.Failed, store.Count())
	return nil
}
