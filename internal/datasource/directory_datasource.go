package datasource

import (
	"context"
	"fmt"
	"mime"
	"strings"

	"github.com/project-kessel/userclaims/internal/directory"
	"github.com/project-kessel/userclaims/internal/service"
)

// UserDirectory fetches user records by id
type UserDirectory interface {
	GetUser(ctx context.Context, userID string) (*directory.Response, error)
}

// DirectoryDataSource fetches user attributes from the user directory service
// with a single GET <base>/user/{id} per fetch
type DirectoryDataSource struct {
	name      string
	directory UserDirectory
}

// DirectoryDataSourceConfig configures a directory data source
type DirectoryDataSourceConfig struct {
	// Name identifies this data source
	Name string

	// Directory is the directory client to fetch from
	Directory UserDirectory
}

// NewDirectoryDataSource creates a new directory data source
func NewDirectoryDataSource(config DirectoryDataSourceConfig) (*DirectoryDataSource, error) {
	if config.Name == "" {
		return nil, fmt.Errorf("data source name is required")
	}
	if config.Directory == nil {
		return nil, fmt.Errorf("directory client is required")
	}

	return &DirectoryDataSource{
		name:      config.Name,
		directory: config.Directory,
	}, nil
}

// Name returns the data source name
func (ds *DirectoryDataSource) Name() string {
	return ds.name
}

// Fetch looks up input.UserID in the directory.
// Returns nil, nil when there is no user id to look up.
func (ds *DirectoryDataSource) Fetch(ctx context.Context, input *service.DataSourceInput) (*service.DataSourceResult, error) {
	if input == nil || input.UserID == "" {
		return nil, nil
	}

	resp, err := ds.directory.GetUser(ctx, input.UserID)
	if err != nil {
		return nil, err
	}

	return &service.DataSourceResult{
		StatusCode:  resp.StatusCode,
		Data:        resp.Body,
		ContentType: contentType(resp.ContentType),
	}, nil
}

// contentType maps a response Content-Type header onto a data source content type
func contentType(header string) service.DataSourceContentType {
	mediaType, _, err := mime.ParseMediaType(header)
	if err != nil {
		return service.ContentTypeText
	}
	if mediaType == string(service.ContentTypeJSON) || strings.HasSuffix(mediaType, "+json") {
		return service.ContentTypeJSON
	}
	return service.ContentTypeText
}
