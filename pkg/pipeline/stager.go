package pipeline

import (
	"context"
	"io"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
	"github.com/schollz/progressbar/v3"

	"github.com/DethRaid/SanityEngine/pkg/sblog"
)

// StageArtifacts copies every manifest entry to its destination. Failed copies don't stop the
// stager, they are returned as warnings instead. Only a cancelled context aborts early.
func StageArtifacts(ctx context.Context, manifest ArtifactManifest, bar *progressbar.ProgressBar) ([]string, error) {
	var warnings []string

	for _, item := range manifest {
		if err := ctx.Err(); err != nil {
			return warnings, eris.Wrap(err, "staging was cancelled")
		}

		err := copyArtifact(item.Source, item.Dest)
		if err != nil {
			pErr := NewError(ArtifactCopyError, StageStage, err)
			sblog.Log(ctx).Warn().
				Err(pErr).
				Str("artifact", item.Name).
				Msgf("Could not copy %s", item.Name)

			warnings = append(warnings, pErr.Error())
		} else {
			sblog.Log(ctx).Debug().
				Str("src", item.Source).
				Str("dest", item.Dest).
				Msgf("Copied %s", item.Name)
		}

		if bar != nil {
			_ = bar.Add(1)
		}
	}

	if bar != nil {
		_ = bar.Finish()
	}
	return warnings, nil
}

// copyArtifact copies src to dest, overwriting dest and preserving the file mode of src.
func copyArtifact(src, dest string) error {
	srcHandle, err := os.Open(src)
	if err != nil {
		return eris.Wrapf(err, "failed to open %s", src)
	}
	defer srcHandle.Close()

	info, err := srcHandle.Stat()
	if err != nil {
		return eris.Wrapf(err, "failed to stat %s", src)
	}

	if info.IsDir() {
		return eris.Errorf("%s is a directory", src)
	}

	destDir := filepath.Dir(dest)
	err = os.MkdirAll(destDir, 0770)
	if err != nil {
		return eris.Wrapf(err, "failed to create directory %s", destDir)
	}

	destHandle, err := os.OpenFile(dest, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return eris.Wrapf(err, "failed to open %s for writing", dest)
	}

	_, err = io.Copy(destHandle, srcHandle)
	if err != nil {
		destHandle.Close()
		return eris.Wrapf(err, "failed to copy %s to %s", src, dest)
	}

	err = destHandle.Close()
	if err != nil {
		return eris.Wrapf(err, "failed to write %s", dest)
	}

	// an existing destination keeps its old mode otherwise
	err = os.Chmod(dest, info.Mode().Perm())
	if err != nil {
		return eris.Wrapf(err, "failed to update the permissions of %s", dest)
	}
	return nil
}
