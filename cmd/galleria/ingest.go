package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync/atomic"

	"github.com/sourcegraph/conc/pool"
	"github.com/spf13/cobra"

	"galleria/internal/database"
	"galleria/internal/ingest"
	"galleria/internal/media"
	"galleria/pkg/logger"
	"galleria/pkg/utils"
)

var (
	ingestOwner    string
	ingestJobs     int
	ingestPrivate  bool
	ingestTags     []string
	ingestCategory string
)

// ingestCmd represents the ingest command
var ingestCmd = &cobra.Command{
	Use:   "ingest <folder>...",
	Short: "Import a folder of photos into a user's gallery",
	Long:  `Walks the given folders and runs every image through the upload pipeline as if it had been uploaded by --owner.`,
	Args: func(cmd *cobra.Command, args []string) error {
		if err := cobra.MinimumNArgs(1)(cmd, args); err != nil {
			return err
		}
		for i, input := range args {
			info, err := os.Stat(input)
			if err != nil {
				return fmt.Errorf("on %dth argument: %w", i+1, err)
			}
			if !info.IsDir() {
				return fmt.Errorf("on %dth argument: must be a directory", i+1)
			}
		}
		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		if ingestOwner == "" {
			return errors.New("--owner is required")
		}

		ctx := cmd.Context()
		a := bootstrap(ctx, false)
		defer a.close()

		var owner database.User
		if err := database.DB.WithContext(ctx).Where("username = ?", ingestOwner).First(&owner).Error; err != nil {
			return fmt.Errorf("owner %q: %w", ingestOwner, err)
		}

		var imported, failed atomic.Int64
		p := pool.New().WithMaxGoroutines(max(ingestJobs, 1))

		for _, input := range args {
			err := filepath.WalkDir(input, func(path string, d fs.DirEntry, err error) error {
				if err != nil {
					return err
				}
				if d.IsDir() {
					return nil
				}

				p.Go(func() {
					if err := ingestFile(cmd, a.images, owner.ID, path); err != nil {
						logger.LogWarn("Skipped %s: %v", path, err)
						failed.Add(1)
						return
					}
					imported.Add(1)
				})
				return nil
			})
			if err != nil {
				logger.LogError("Walking %s: %v", input, err)
			}
		}
		p.Wait()

		logger.LogSuccess("Ingest finished: %d imported, %d skipped", imported.Load(), failed.Load())
		return nil
	},
}

var errNotImage = errors.New("not an image")

func ingestFile(cmd *cobra.Command, images *ingest.Service, owner uint, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	head := data
	if len(head) > 512 {
		head = head[:512]
	}
	if !utils.IsImageUpload(head, path) {
		return errNotImage
	}

	img, err := images.Create(cmd.Context(), ingest.CreateInput{
		Owner:    owner,
		Blob:     media.Blob{Name: filepath.Base(path), Data: data},
		Tags:     ingestTags,
		Category: ingestCategory,
		IsPublic: !ingestPrivate,
	})
	if err != nil {
		return err
	}
	logger.LogDebug("Imported %s as #%d", path, img.ID)
	return nil
}

func init() {
	rootCmd.AddCommand(ingestCmd)
	ingestCmd.Flags().StringVarP(&ingestOwner, "owner", "o", "", "Username that will own the imported photos")
	ingestCmd.Flags().IntVarP(&ingestJobs, "jobs", "j", 4, "Amount of concurrent ingestors")
	ingestCmd.Flags().BoolVar(&ingestPrivate, "private", false, "Import as private photos")
	ingestCmd.Flags().StringSliceVarP(&ingestTags, "tags", "t", nil, "Tags applied to every photo")
	ingestCmd.Flags().StringVar(&ingestCategory, "category", "", "Category name or id applied to every photo")
}
