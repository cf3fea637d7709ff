package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/ternarybob/prospect/internal/app"
	"github.com/ternarybob/prospect/internal/models"
)

// runEnqueue adds one root item to the queue and exits. Badger holds an
// exclusive lock, so enqueue runs while serve is stopped; workers pick
// the item up on the next serve.
func runEnqueue(args []string) {
	fs := flag.NewFlagSet("enqueue", flag.ExitOnError)
	itemType := fs.String("type", string(models.ItemTypeSourceDiscovery), "Item type: JOB, COMPANY, SOURCE_DISCOVERY, SCRAPE_SOURCE")
	itemURL := fs.String("url", "", "Subject URL")
	companyName := fs.String("company", "", "Company name")
	sourceID := fs.String("source-id", "", "Source id (SCRAPE_SOURCE items)")
	fs.Parse(args)

	t := models.ItemType(*itemType)
	switch t {
	case models.ItemTypeJob, models.ItemTypeCompany, models.ItemTypeSourceDiscovery, models.ItemTypeScrapeSource:
	default:
		logger.Error().Str("type", *itemType).Msg("Unknown item type")
		os.Exit(2)
	}
	if *itemURL == "" && *companyName == "" && *sourceID == "" {
		logger.Error().Msg("At least one of -url, -company, -source-id is required")
		os.Exit(2)
	}

	ctx := context.Background()

	application, err := app.New(ctx, config, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize application")
	}
	defer application.Close()

	id, err := application.Queue.AddItem(ctx, &models.QueueItem{
		Type:        t,
		URL:         *itemURL,
		CompanyName: *companyName,
		SourceID:    *sourceID,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to enqueue item")
	}

	fmt.Printf("enqueued %s item %s\n", t, id)
}
