package jobs

import (
	"context"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"
)

// DownloadTokenHeader はダウンロードトークンを渡すヘッダー名です（クエリ ?token= でも可）。
const DownloadTokenHeader = "X-Download-Token"

// SubmitHandler は POST /api/jobs のハンドラーを返します。
func SubmitHandler(svc *Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		form, err := c.MultipartForm()
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				c.JSON(http.StatusRequestEntityTooLarge, gin.H{
					"code":    "UPLOAD_TOO_LARGE",
					"message": fmt.Sprintf("アップロードサイズが上限（%dバイト）を超えています。", tooLarge.Limit),
				})
				return
			}
			c.JSON(http.StatusBadRequest, gin.H{
				"code":    "INVALID_INPUT",
				"message": "multipart/form-data でPDFファイルを送信してください。",
			})
			return
		}
		defer form.RemoveAll()

		result, err := svc.Submit(c.Request.Context(), SubmitRequest{
			Operation:  formValue(form, "operation"),
			Pages:      formValue(form, "pages"),
			OutputName: formValue(form, "output_name"),
			Files:      formFiles(form),
		})
		if err != nil {
			respondWithError(c, err)
			return
		}
		c.JSON(http.StatusAccepted, result)
	}
}

// StatusHandler は GET /api/jobs/:id のハンドラーを返します。
func StatusHandler(svc *Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		jobID := strings.TrimSpace(c.Param("id"))
		if jobID == "" {
			c.JSON(http.StatusBadRequest, gin.H{
				"code":    "INVALID_INPUT",
				"message": "job_id を指定してください。",
			})
			return
		}

		view, err := svc.Status(c.Request.Context(), jobID)
		if err != nil {
			respondWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, view)
	}
}

// DownloadHandler は GET /api/jobs/:id/download のハンドラーを返します。
func DownloadHandler(svc *Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		jobID := strings.TrimSpace(c.Param("id"))
		if jobID == "" {
			c.JSON(http.StatusBadRequest, gin.H{
				"code":    "INVALID_INPUT",
				"message": "job_id を指定してください。",
			})
			return
		}

		token := c.Query("token")
		if token == "" {
			token = c.GetHeader(DownloadTokenHeader)
		}

		dl, err := svc.OpenDownload(c.Request.Context(), jobID, token)
		if err != nil {
			respondWithError(c, err)
			return
		}
		defer dl.File.Close()

		encodedName := url.PathEscape(dl.Name)
		c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=\"%s\"; filename*=UTF-8''%s", dl.Name, encodedName))
		c.Header("Cache-Control", "no-store")
		c.Header("X-Job-Id", dl.JobID)
		c.DataFromReader(http.StatusOK, dl.Size, "application/pdf", dl.File, nil)
	}
}

// LegacyUploadHandler は廃止した同期アップロード API に 410 を返します。
func LegacyUploadHandler(c *gin.Context) {
	c.JSON(http.StatusGone, gin.H{
		"code":    "ENDPOINT_GONE",
		"message": "この API は廃止されました。POST /api/jobs でジョブを作成してください。",
		"next":    "/api/jobs",
	})
}

func respondWithError(c *gin.Context, err error) {
	var jobErr *Error
	switch {
	case errors.As(err, &jobErr):
		body := gin.H{}
		for k, v := range jobErr.Details {
			body[k] = v
		}
		body["code"] = jobErr.Code
		body["message"] = jobErr.Message
		c.JSON(statusForKind(jobErr.Kind), body)
	case errors.Is(err, context.Canceled):
		c.JSON(http.StatusRequestTimeout, gin.H{
			"code":    "REQUEST_CANCELED",
			"message": "リクエストがキャンセルされました。",
		})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{
			"code":    "INTERNAL_ERROR",
			"message": "サーバー内部でエラーが発生しました。",
		})
	}
}

func statusForKind(kind Kind) int {
	switch kind {
	case KindValidation:
		return http.StatusBadRequest
	case KindUnavailable:
		return http.StatusServiceUnavailable
	case KindForbidden:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func formValue(form *multipart.Form, key string) string {
	if values := form.Value[key]; len(values) > 0 {
		return values[0]
	}
	return ""
}

func formFiles(form *multipart.Form) []*multipart.FileHeader {
	if files := form.File["file"]; len(files) > 0 {
		return files
	}
	return form.File["files[]"]
}
