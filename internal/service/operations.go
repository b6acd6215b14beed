package service

import "github.com/glasserstudy/glasser/internal/client"

func op(name, document string) client.Operation {
	return client.Operation{Name: name, Document: document}
}

func public(name, document string) client.Operation {
	return client.Operation{Name: name, Document: document, Public: true}
}

const chatFields = `
      id
      name
      description
      isModerator
      isInvited
      members {
        user {
          id
          name
          email
        }
        isInvited
        isModerator
      }`

const messageFields = `
      id
      content
      isCurrentUser
      sender {
        id
        name
        email
      }
      createdAt`

var (
	opGetChats = op("GetChats", `query GetChats($search: String) {
    myChats(search: $search) {`+chatFields+`
    }
  }`)
	opGetMember = op("GetMember", `query GetMember($email: String!) {
    user(email: $email) {
      id
      name
      email
    }
  }`)
	opGetMessages = op("GetMessages", `query GetMessages($chatId: ID!) {
    chatMessages(chatId: $chatId) {`+messageFields+`
    }
  }`)
	opSaveChat = op("SaveChat", `mutation SaveChat($saveChatData: CreateChatDto!, $id: String) {
    saveChat(saveChatData: $saveChatData, id: $id) {`+chatFields+`
    }
  }`)
	opRemoveChat = op("RemoveChat", `mutation RemoveChat($id: String!) {
    removeChat(id: $id) {
      id
    }
  }`)
	opSaveMessage = op("SaveMessage", `mutation SaveMessage($saveMessageInput: SaveMessageDto!) {
    saveMessage(saveMessageInput: $saveMessageInput) {`+messageFields+`
    }
  }`)
	opManageInvitation = op("ManageInvitation", `mutation ManageInvitation($id: String!, $accept: Boolean!) {
    manageInvitation(id: $id, accept: $accept)
  }`)
	opExitChat = op("ExitChat", `mutation ExitChat($id: String!) {
    exitChat(id: $id)
  }`)
)

const goalFields = `
      id
      name
      description
      tasks {
        name
        link
        completed
      }`

var (
	opMyGoals = op("MyGoals", `query MyGoals {
    myGoals {`+goalFields+`
    }
  }`)
	opSaveGoal = op("SaveGoal", `mutation SaveGoal($saveGoalDto: SaveGoalDto!, $id: ID) {
    saveGoal(saveGoalDto: $saveGoalDto, id: $id) {`+goalFields+`
    }
  }`)
	opDeleteGoal = op("DeleteGoal", `mutation DeleteGoal($id: ID!) {
    deleteGoal(id: $id)
  }`)
	opToggleTask = op("ToggleTask", `mutation ToggleTask($goalId: ID!, $taskId: Int!) {
    toggleTask(goalId: $goalId, taskId: $taskId) {
      goalId
      taskId
      completed
    }
  }`)
)

const postFields = `
      id
      title
      subject
      description
      tags
      materials {
        name
        link
        type
      }
      author {
        id
      }
      isAuthor
      likesCount
      commentsCount
      createdAt
      updatedAt`

const commentFields = `
      id
      content
      author {
        id
        name
      }
      createdAt`

var (
	opGetPosts = op("GetPosts", `query GetPosts(
    $searchTerm: String
    $searchFilter: String
    $subject: String
    $materialType: String
  ) {
    posts(
      searchTerm: $searchTerm
      searchFilter: $searchFilter
      subject: $subject
      materialType: $materialType
    ) {`+postFields+`
    }
  }`)
	opSavePost = op("SavePost", `mutation SavePost($savePostDto: SavePostDto!, $id: String) {
    savePost(savePostDto: $savePostDto, id: $id) {`+postFields+`
    }
  }`)
	opDeletePost = op("DeletePost", `mutation DeletePost($id: String!) {
    deletePost(id: $id) {
      id
    }
  }`)
	opToggleLike = op("ToggleLike", `mutation ToggleLike($input: CreateLikeDto!) {
    toggleLike(input: $input) {
      id
    }
  }`)
	opGetComments = op("GetComments", `query GetComments($postId: String!) {
    getComments(postId: $postId) {`+commentFields+`
    }
  }`)
	opCreateComment = op("CreateComment", `mutation CreateComment($input: CreateCommentDto!) {
    createComment(input: $input) {`+commentFields+`
    }
  }`)
	opDeleteComment = op("DeleteComment", `mutation DeleteComment($id: String!) {
    deleteComment(id: $id) {
      id
    }
  }`)
	opCreateReport = op("CreateReport", `mutation CreateReport($saveReportDto: SaveReportDto!) {
    createReport(saveReportDto: $saveReportDto) {
      id
    }
  }`)
)

const groupFields = `
      id
      name
      description
      members {
        user {
          id
          name
          email
        }
        isInvited
        isModerator
      }`

var (
	opGetGroups = op("GetGroups", `query GetGroups($search: String) {
    myGroups(search: $search) {`+groupFields+`
    }
  }`)
	opSaveGroup = op("SaveGroup", `mutation SaveGroup($saveGroupData: CreateGroupDto!, $id: String) {
    saveGroup(saveGroupData: $saveGroupData, id: $id) {`+groupFields+`
    }
  }`)
	opRemoveGroup = op("RemoveGroup", `mutation RemoveGroup($id: String!) {
    removeGroup(id: $id) {
      id
    }
  }`)
)

const notificationFields = `
      id
      message
      type
      read
      timestamp`

var (
	opMyNotifications = op("MyNotifications", `query MyNotifications($limit: Int) {
    myNotifications(limit: $limit) {`+notificationFields+`
    }
  }`)
	opOnNotification = op("OnNotification", `subscription OnNotification {
    newNotification {`+notificationFields+`
    }
  }`)
	opMarkNotificationRead = op("MarkNotificationRead", `mutation MarkNotificationRead($id: String!) {
    markNotificationAsRead(id: $id) {`+notificationFields+`
    }
  }`)
	opMarkAllNotificationsRead = op("MarkAllNotificationsRead", `mutation MarkAllNotificationsRead {
    markAllNotificationsAsRead
  }`)
)

const userFields = `
      id
      name
      email
      goal
      profileImageUrl`

var (
	opMe = op("Me", `query Me {
    me {`+userFields+`
    }
  }`)
	opGetPresignedURL = op("GetPresignedUrl", `query GetPresignedUrl($type: String!) {
    getPresignedUrl(type: $type) {
      uploadUrl
      publicUrl
    }
  }`)
	opUpdateMe = op("UpdateMe", `mutation UpdateMe($userData: UpdateUserDto!) {
    updateMe(userData: $userData) {`+userFields+`
    }
  }`)
	opLogin = public("Login", `mutation Login($userLoginData: LoggedUserDto!) {
    login(userLoginData: $userLoginData) {
      token
    }
  }`)
	opSignUp = public("SignUp", `mutation SignUp($createUserData: CreateUserDto!) {
    signUp(createUserData: $createUserData) {
      id
    }
  }`)
	opResetPassword = public("ResetPassword", `mutation ResetPassword($email: String!) {
    resetPassword(email: $email)
  }`)
)
