/*
Package ports defines the driven ports (interfaces) of the enikki pipeline.

These interfaces decouple the workflow from the model provider, the object
storage that hosts illustrations, the document store and the notification
channel. Adapters live under pkg/adapters; tests inject fakes.

# Key Interfaces

  - ModelClient: Text and image generation.
  - ObjectStore: Uploads generated images and returns their public URL.
  - DiaryStore: Persists the run document keyed by run id.
  - Notifier: Delivers the completion notice.
*/
package ports
