package protocol

import (
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/Sarthakshelke9895/Cloud/model"
)

// UploadFromRequest reads a multipart upload from a request. The part named
// "file" becomes the upload content and "metadata.<key>" fields become
// metadata tags. Content beyond maxBytes fails with model.ErrBlobTooLarge.
func UploadFromRequest(req *http.Request, maxBytes int64) (*model.Upload, error) {
	reader, err := req.MultipartReader()
	if errors.Is(err, http.ErrNotMultipart) || errors.Is(err, http.ErrMissingBoundary) {
		return nil, model.ErrMissingFile
	}
	if err != nil {
		return nil, ErrInvalidForm
	}
	return readUpload(reader, maxBytes)
}

func readUpload(reader *multipart.Reader, maxBytes int64) (*model.Upload, error) {
	var upload *model.Upload
	tags := make(map[string]string)

	for {
		part, err := reader.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, formError(err)
		}

		name := part.FormName()
		switch {
		case name == FormFieldFile && part.FileName() != "":
			if upload != nil {
				part.Close()
				return nil, ErrMultipleFiles
			}
			upload, err = readFilePart(part, maxBytes)
		case strings.HasPrefix(name, FormFieldMetadataPrefix):
			err = readMetadataPart(part, strings.TrimPrefix(name, FormFieldMetadataPrefix), tags)
		default:
			if _, err = io.Copy(io.Discard, part); err != nil {
				err = formError(err)
			}
		}
		part.Close()
		if err != nil {
			return nil, err
		}
	}

	if upload == nil {
		return nil, model.ErrMissingFile
	}
	for k, v := range tags {
		upload.Metadata[k] = v
	}
	upload.Metadata[MetadataOriginalName] = upload.Filename
	upload.Metadata[MetadataMimeType] = upload.ContentType
	upload.Metadata[MetadataSize] = strconv.Itoa(len(upload.Data))
	return upload, nil
}

func readFilePart(part *multipart.Part, maxBytes int64) (*model.Upload, error) {
	data, err := io.ReadAll(io.LimitReader(part, maxBytes+1))
	if err != nil {
		return nil, formError(err)
	}
	if int64(len(data)) > maxBytes {
		return nil, model.ErrBlobTooLarge
	}

	contentType := part.Header.Get(HeaderContentType)
	if contentType == "" {
		contentType = DefaultContentType
	}
	return &model.Upload{
		Filename:    part.FileName(),
		ContentType: contentType,
		Data:        data,
		Metadata:    make(map[string]string),
	}, nil
}

func readMetadataPart(part *multipart.Part, key string, tags map[string]string) error {
	if key == "" {
		return ErrInvalidMetadataKey
	}
	if _, exists := tags[key]; !exists && len(tags) >= maxMetadataFields {
		return ErrTooManyMetadataFields
	}
	value, err := io.ReadAll(io.LimitReader(part, maxMetadataValueBytes+1))
	if err != nil {
		return formError(err)
	}
	if len(value) > maxMetadataValueBytes {
		return ErrMetadataTooLarge
	}
	tags[key] = string(value)
	return nil
}

// formError maps a body read failure, a request body over the server's limit
// counts as an oversized upload
func formError(err error) error {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return model.ErrBlobTooLarge
	}
	return ErrInvalidForm
}

// DownloadRequested reports whether the client asked for an attachment
func DownloadRequested(req *http.Request) bool {
	return req.URL.Query().Get(QueryDownload) == "true"
}
