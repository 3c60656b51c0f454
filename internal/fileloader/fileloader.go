package fileloader

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/GoMudEngine/palaver/internal/mudlog"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"
)

type FileType uint8
type SaveOption uint8

type LoadableSimple interface {
	Validate() error  // General validation (or none)
	Filepath() string // Relative file path to some base directory - can include subfolders
}

type Loadable[K comparable] interface {
	Id() K // Must be a unique identifier for the data
	LoadableSimple
}

const (
	// File types to load
	FileTypeYaml FileType = iota
	FileTypeJson
)

const (
	SaveCareful SaveOption = iota // Save a backup and rename vs. just overwriting
)

var errInvalidFileType = errors.New(`invalid file type`)

// LoadFlatFile reads a single yaml or json file and validates it.
func LoadFlatFile[T LoadableSimple](path string) (T, error) {

	var loaded T

	path = filepath.FromSlash(path)

	fileInfo, err := os.Stat(path)
	if err != nil {
		return loaded, errors.Wrap(err, `filepath: `+path)
	}

	if fileInfo.IsDir() {
		return loaded, errors.New(`filepath: ` + path + ` is a directory`)
	}

	bytes, err := os.ReadFile(path)
	if err != nil {
		return loaded, errors.Wrap(err, `filepath: `+path)
	}

	switch fileTypeOf(path) {
	case FileTypeYaml:
		err = yaml.Unmarshal(bytes, &loaded)
	case FileTypeJson:
		err = json.Unmarshal(bytes, &loaded)
	default:
		return loaded, errors.Wrap(errInvalidFileType, path)
	}
	if err != nil {
		return loaded, errors.Wrap(err, `filepath: `+path)
	}

	// Make sure the Filepath it claims is correct in case we need to save it later
	if !strings.HasSuffix(path, filepath.FromSlash(loaded.Filepath())) {
		return loaded, errors.New(fmt.Sprintf(`filesystem path "%s" did not end in Filepath() "%s" for type %T`, path, loaded.Filepath(), loaded))
	}

	if err := loaded.Validate(); err != nil {
		return loaded, errors.Wrap(err, `filepath: `+path)
	}

	return loaded, nil
}

// LoadAllFlatFiles walks basePath and loads every matching file, checking
// that each Id() is unique. A missing basePath loads nothing.
func LoadAllFlatFiles[K comparable, T Loadable[K]](basePath string, fileTypes ...FileType) (map[K]T, error) {
	loadedData := make(map[K]T)
	seenIds := make(map[K]string)

	basePath = filepath.FromSlash(basePath)
	if _, err := os.Stat(basePath); os.IsNotExist(err) {
		mudlog.Warn("fileloader", "path", basePath, "info", "directory does not exist")
		return loadedData, nil
	}

	include := includedTypes(fileTypes)

	err := filepath.Walk(basePath, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}

		ft := fileTypeOf(path)
		if !include[ft] {
			return nil
		}

		loaded, loadErr := LoadFlatFile[T](path)
		if loadErr != nil {
			if errors.Cause(loadErr) == errInvalidFileType {
				return nil
			}
			return errors.Wrap(loadErr, fmt.Sprintf("failed to load flat file %s", path))
		}

		id := loaded.Id()
		if existingPath, ok := seenIds[id]; ok {
			return errors.New(fmt.Sprintf("duplicate ID %v found in file %s and %s", id, existingPath, path))
		}
		seenIds[id] = path
		loadedData[id] = loaded
		return nil
	})

	if err != nil {
		return nil, err
	}
	return loadedData, nil
}

// SaveFlatFile writes dataUnit below basePath, creating directories as needed.
func SaveFlatFile[T LoadableSimple](basePath string, dataUnit T, saveOptions ...SaveOption) error {
	filePath := filepath.FromSlash(filepath.Join(basePath, dataUnit.Filepath()))

	dir := filepath.Dir(filePath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return errors.Wrap(err, "failed to create directory for saving file: "+dir)
	}

	var bytes []byte
	var err error

	switch fileTypeOf(filePath) {
	case FileTypeYaml:
		bytes, err = yaml.Marshal(&dataUnit)
	case FileTypeJson:
		bytes, err = json.MarshalIndent(&dataUnit, "", "  ")
	default:
		return errors.New("unsupported file type for saving: " + filePath + " (must be .yaml or .json)")
	}
	if err != nil {
		return errors.Wrap(err, "failed to marshal data for file: "+filePath)
	}

	careful := false
	for _, opt := range saveOptions {
		if opt == SaveCareful {
			careful = true
		}
	}

	if !careful {
		if err := os.WriteFile(filePath, bytes, 0644); err != nil {
			return errors.Wrap(err, "failed to write file (overwrite): "+filePath)
		}
		return nil
	}

	backupFilePath := filePath + ".bak"
	if _, statErr := os.Stat(filePath); statErr == nil {
		if copyErr := CopyFileContents(filePath, backupFilePath); copyErr != nil {
			return errors.Wrap(copyErr, "failed to create backup file: "+backupFilePath)
		}
	}

	tempFilePath := filePath + ".tmp"
	if err := os.WriteFile(tempFilePath, bytes, 0644); err != nil {
		return errors.Wrap(err, "failed to write to temporary file: "+tempFilePath)
	}

	if err := os.Rename(tempFilePath, filePath); err != nil {
		if _, statErr := os.Stat(backupFilePath); statErr == nil {
			if restoreErr := os.Rename(backupFilePath, filePath); restoreErr != nil {
				mudlog.Error("SaveFlatFile", "backupFile", backupFilePath, "targetFile", filePath, "error", restoreErr)
			}
		}
		return errors.Wrap(err, "failed to rename temporary file to target file: "+filePath)
	}

	os.Remove(backupFilePath)

	return nil
}

// CopyFileContents copies the contents of the file named src to the file named
// by dst, replacing anything already there.
func CopyFileContents(src, dst string) (err error) {
	in, err := os.Open(filepath.FromSlash(src))
	if err != nil {
		return
	}
	defer in.Close()
	out, err := os.Create(filepath.FromSlash(dst))
	if err != nil {
		return
	}
	defer func() {
		if e := out.Close(); e != nil {
			err = e
		}
	}()
	if _, err = io.Copy(out, in); err != nil {
		return
	}
	return out.Sync()
}

func fileTypeOf(path string) FileType {
	lower := strings.ToLower(path)
	switch {
	case strings.HasSuffix(lower, ".yaml"), strings.HasSuffix(lower, ".yml"):
		return FileTypeYaml
	case strings.HasSuffix(lower, ".json"):
		return FileTypeJson
	}
	return FileType(255)
}

func includedTypes(fileTypes []FileType) map[FileType]bool {
	if len(fileTypes) == 0 {
		return map[FileType]bool{FileTypeYaml: true, FileTypeJson: true}
	}
	include := map[FileType]bool{}
	for _, ft := range fileTypes {
		include[ft] = true
	}
	return include
}
