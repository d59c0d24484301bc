package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"

	"github.com/myapphub/apphub/internal/model/packageInfo"
)

// uploadctl drives the asynchronous upload protocol from the client
// side: request a ticket, push the file at the returned URL, confirm.

type client struct {
	apiURL string
	token  string
	http   *http.Client
}

func (c *client) do(method, path string, form url.Values, out any) error {
	var body io.Reader
	contentType := ""
	if form != nil {
		body = bytes.NewBufferString(form.Encode())
		contentType = "application/x-www-form-urlencoded"
	}
	req, err := http.NewRequest(method, c.apiURL+path, body)
	if err != nil {
		return err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Authorization", "Token "+c.token)

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		data, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("%s %s: %s: %s", method, path, resp.Status, data)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// push sends the file the way the ticket's storage tag dictates: a raw
// PUT for a presigned object-store URL, a multipart POST for the local
// direct endpoint.
func (c *client) push(ticket *packageInfo.UploadTicket, file string) error {
	f, err := os.Open(file)
	if err != nil {
		return err
	}
	defer f.Close()

	switch ticket.Storage {
	case packageInfo.StorageRemote:
		req, err := http.NewRequest(http.MethodPut, ticket.UploadURL, f)
		if err != nil {
			return err
		}
		resp, err := c.http.Do(req)
		if err != nil {
			return err
		}
		resp.Body.Close()
		if resp.StatusCode >= 300 {
			return fmt.Errorf("upload to storage: %s", resp.Status)
		}
		return nil
	case packageInfo.StorageLocal:
		var buf bytes.Buffer
		mw := multipart.NewWriter(&buf)
		fw, err := mw.CreateFormFile("file", filepath.Base(file))
		if err != nil {
			return err
		}
		if _, err := io.Copy(fw, f); err != nil {
			return err
		}
		mw.Close()
		req, err := http.NewRequest(http.MethodPost, ticket.UploadURL, &buf)
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", mw.FormDataContentType())
		req.Header.Set("Authorization", "Token "+c.token)
		resp, err := c.http.Do(req)
		if err != nil {
			return err
		}
		resp.Body.Close()
		if resp.StatusCode >= 300 {
			return fmt.Errorf("direct upload: %s", resp.Status)
		}
		return nil
	}
	return fmt.Errorf("unknown storage type %q", ticket.Storage)
}

func (c *client) uploadPackage(file, commitID, buildType, channel, description string) (int, error) {
	form := url.Values{"filename": {filepath.Base(file)}}
	if commitID != "" {
		form.Set("commit_id", commitID)
	}
	if buildType != "" {
		form.Set("build_type", buildType)
	}
	if channel != "" {
		form.Set("channel", channel)
	}
	if description != "" {
		form.Set("description", description)
	}

	var ticket packageInfo.UploadTicket
	if err := c.do(http.MethodPost, "/upload/package/request", form, &ticket); err != nil {
		return 0, err
	}
	if err := c.push(&ticket, file); err != nil {
		return 0, err
	}
	if ticket.Storage == packageInfo.StorageLocal {
		// The direct endpoint already ingested the package.
		return 0, nil
	}

	var result packageInfo.ConfirmResult
	if err := c.do(http.MethodPut, "/upload/package/record/"+ticket.RecordID, nil, &result); err != nil {
		return 0, err
	}
	if result.Status != packageInfo.UploadCompleted || result.Data == nil {
		return 0, fmt.Errorf("upload not completed: status %q", result.Status)
	}
	log.Printf("package %d ingested: %s %s", result.Data.Seq, result.Data.BundleIdentifier, result.Data.Version)
	return result.Data.Seq, nil
}

func (c *client) uploadSymbol(file string, packageSeq int) error {
	form := url.Values{"filename": {filepath.Base(file)}}
	var ticket packageInfo.UploadTicket
	if err := c.do(http.MethodPost, "/upload/symbol/request/"+strconv.Itoa(packageSeq), form, &ticket); err != nil {
		return err
	}
	if err := c.push(&ticket, file); err != nil {
		return err
	}
	if ticket.Storage == packageInfo.StorageLocal {
		return nil
	}
	var result packageInfo.ConfirmResult
	return c.do(http.MethodPut, "/upload/symbol/record/"+ticket.RecordID, nil, &result)
}

func main() {
	apiURL := flag.String("api-url", "", "api base url")
	token := flag.String("token", "", "application upload token")
	pkgFile := flag.String("package", "", "package file path")
	symFile := flag.String("symbol", "", "symbol file path")
	description := flag.String("description", "", "description")
	commitID := flag.String("commit-id", "", "commit id")
	buildType := flag.String("build-type", "", "build type")
	channel := flag.String("channel", "", "build channel")
	packageSeq := flag.Int("package-id", 0, "target package id for symbol upload")
	flag.Parse()

	if *apiURL == "" || *token == "" {
		flag.Usage()
		os.Exit(2)
	}

	c := &client{apiURL: *apiURL, token: *token, http: http.DefaultClient}

	seq := *packageSeq
	if *pkgFile != "" {
		var err error
		seq, err = c.uploadPackage(*pkgFile, *commitID, *buildType, *channel, *description)
		if err != nil {
			log.Fatalf("upload package: %v", err)
		}
	}
	if *symFile != "" {
		if err := c.uploadSymbol(*symFile, seq); err != nil {
			log.Fatalf("upload symbol: %v", err)
		}
	}
}
